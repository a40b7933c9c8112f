package domain

import (
	"context"
	"errors"
)

// ErrServiceNotFound is returned by a Catalog when no service matches a query.
var ErrServiceNotFound = errors.New("service not found")

// ReasoningEngine is the model-agnostic interface for one engine round trip.
// Implementations may be Gemini, OpenAI, Ollama, or scripted replays. The
// engine is stateless: the full conversation is passed on every call.
type ReasoningEngine interface {
	Reply(ctx context.Context, turns []Turn, tools []ToolDefinition) (*EngineReply, error)
}

// ToolInvoker dispatches one tool call to the tool server and returns its
// textual result. Implementations never return an error: failures come back
// as a result string carrying a failure prefix.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) string
}

// Catalog is the read side of the service catalog.
type Catalog interface {
	// FindService returns the first service whose name contains query
	// (case-insensitive). Returns ErrServiceNotFound when nothing matches.
	FindService(ctx context.Context, query string) (*Service, error)

	// ListServices returns every catalog entry in catalog order.
	ListServices(ctx context.Context) ([]Service, error)
}

// LeadStore appends to the lead ledger.
type LeadStore interface {
	// SaveLead inserts lead atomically and returns the assigned identity.
	SaveLead(ctx context.Context, lead Lead) (int64, error)

	// ListLeads returns the most recent leads, newest first. limit <= 0 means all.
	ListLeads(ctx context.Context, limit int) ([]Lead, error)
}

// Tokenizer counts tokens in a string for document budgeting.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the given text.
	CountTokens(text string) (int, error)

	// Truncate returns the longest prefix of text that fits in maxTokens.
	Truncate(text string, maxTokens int) (string, error)
}
