package domain

import (
	"encoding/json"
	"time"
)

// =============================================================================
// Core Configuration
// =============================================================================

type Config struct {
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Tools   ToolsConfig   `json:"tools" yaml:"tools"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Inbox   InboxConfig   `json:"inbox" yaml:"inbox"`
	Infra   InfraConfig   `json:"infra" yaml:"infra"`
}

type GatewayConfig struct {
	Port           int        `json:"port" yaml:"port"`
	Auth           AuthConfig `json:"auth" yaml:"auth"`
	MaxUploadBytes int64      `json:"maxUploadBytes" yaml:"maxUploadBytes"` // 0 = default (20 MB)
}

type AuthConfig struct {
	AuthToken string `json:"authToken,omitempty" yaml:"authToken,omitempty"` // When set, gateway requires Authorization: Bearer <authToken>
}

// EngineConfig selects the reasoning engine and tunes the reasoning loop.
type EngineConfig struct {
	Provider             string `json:"provider" yaml:"provider"` // "gemini" | "openai" | "ollama" | "scripted"
	Model                string `json:"model" yaml:"model"`
	BaseURL              string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	ScriptPath           string `json:"scriptPath,omitempty" yaml:"scriptPath,omitempty"` // replies for the scripted provider
	MaxIterations        int    `json:"maxIterations" yaml:"maxIterations"`
	CorrectionPrompt     string `json:"correctionPrompt,omitempty" yaml:"correctionPrompt,omitempty"`
	Sanitizer            string `json:"sanitizer" yaml:"sanitizer"` // "greedy" | "balanced"
	EnforceLeadInvariant bool   `json:"enforceLeadInvariant" yaml:"enforceLeadInvariant"`
	MaxDocumentTokens    int    `json:"maxDocumentTokens" yaml:"maxDocumentTokens"` // 0 = no truncation
	Encoding             string `json:"encoding,omitempty" yaml:"encoding,omitempty"`
}

// ToolsConfig describes how the tool-server process is started and called.
type ToolsConfig struct {
	Mode           string            `json:"mode" yaml:"mode"`                           // "pool" | "spawn"
	Command        string            `json:"command,omitempty" yaml:"command,omitempty"` // empty = this executable
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	PoolSize       int               `json:"poolSize" yaml:"poolSize"`
	Recycle        string            `json:"recycle,omitempty" yaml:"recycle,omitempty"` // cron spec, e.g. "@every 30m"
}

type StoreConfig struct {
	URL string `json:"url" yaml:"url"` // "file:pricing.db" or "libsql://..."
}

type InboxConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

type InfraConfig struct {
	LogFormat string `json:"logFormat" yaml:"logFormat"` // "json" | "text"
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
}

// =============================================================================
// Conversation
// =============================================================================

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// Task is the immutable input of one reasoning run.
type Task struct {
	Text string `json:"text"`
}

// ToolCall is a tool invocation requested by the reasoning engine.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`

	// Signature is engine-private data (Gemini thought signatures) that must be
	// echoed back with the call on the next round trip.
	Signature []byte `json:"-"`
}

// ToolResult is the opaque text fed back to the engine for one ToolCall.
type ToolResult struct {
	CallID  string `json:"callId,omitempty"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Turn is one entry of the conversation. Assistant turns may carry ToolCalls;
// tool turns carry exactly one Result.
type Turn struct {
	Role      TurnRole    `json:"role"`
	Text      string      `json:"text,omitempty"`
	ToolCalls []ToolCall  `json:"toolCalls,omitempty"`
	Result    *ToolResult `json:"result,omitempty"`
}

// EngineReply is what a reasoning engine returns for one round trip: either
// tool calls or free text.
type EngineReply struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
}

// WantsTools reports whether the reply requests at least one tool invocation.
func (r *EngineReply) WantsTools() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// =============================================================================
// Tooling
// =============================================================================

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// =============================================================================
// Leads & Catalog
// =============================================================================

type DecisionStatus string

const (
	DecisionApproved DecisionStatus = "approved"
	DecisionDeclined DecisionStatus = "declined"
)

// Decision is the structured payload the engine must finally emit.
type Decision struct {
	Status          DecisionStatus `json:"status" jsonschema:"enum=approved,enum=declined"`
	ClientName      string         `json:"client_name"`
	DetectedService string         `json:"detected_service"`
	LeadScore       int            `json:"lead_score" jsonschema:"minimum=0,maximum=100"`
	CRMAction       string         `json:"crm_action"`
	DraftEmail      string         `json:"draft_email"`
}

// LeadStatusNew is the lifecycle status every freshly saved lead starts in.
const LeadStatusNew = "NEW"

type Lead struct {
	ID         int64     `json:"id"`
	ClientName string    `json:"client_name"`
	Service    string    `json:"service"`
	Score      int       `json:"score"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type Service struct {
	Name        string `json:"name"`
	HourlyRate  int    `json:"hourly_rate"`
	Description string `json:"description"`
}
