package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"titanflow/internal/domain"
)

// DefaultGeminiModel is used when the engine config leaves the model empty.
const DefaultGeminiModel = "gemini-2.5-flash"

// newGenaiClient is genai.NewClient. Package-level var for test injection.
var newGenaiClient = genai.NewClient

// GeminiEngine calls the Google Gemini API with function calling enabled.
type GeminiEngine struct {
	models *genai.Models
	model  string
}

// NewGeminiEngine returns a Gemini-backed ReasoningEngine. baseURL is optional
// and only overrides the API endpoint (tests, proxies).
func NewGeminiEngine(ctx context.Context, apiKey, model, baseURL string) (*GeminiEngine, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}
	client, err := newGenaiClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiEngine{models: client.Models, model: model}, nil
}

// Reply implements domain.ReasoningEngine.
func (g *GeminiEngine) Reply(ctx context.Context, turns []domain.Turn, tools []domain.ToolDefinition) (*domain.EngineReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if decls := geminiDeclarations(tools); len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	resp, err := g.models.GenerateContent(ctx, g.model, geminiContents(turns), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	return geminiReply(resp), nil
}

func geminiDeclarations(tools []domain.ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if len(t.InputSchema) > 0 {
			decl.ParametersJsonSchema = t.InputSchema
		}
		decls = append(decls, decl)
	}
	return decls
}

// geminiContents maps the transcript onto Gemini contents. Consecutive tool
// turns are grouped into a single user content so every function call of a
// model turn is answered in one message.
func geminiContents(turns []domain.Turn) []*genai.Content {
	var contents []*genai.Content
	var pending *genai.Content
	flush := func() {
		if pending != nil {
			contents = append(contents, pending)
			pending = nil
		}
	}
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleTool:
			if turn.Result == nil {
				continue
			}
			if pending == nil {
				pending = &genai.Content{Role: genai.RoleUser}
			}
			pending.Parts = append(pending.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       turn.Result.CallID,
					Name:     turn.Result.Name,
					Response: map[string]any{"result": turn.Result.Content},
				},
			})
		case domain.RoleAssistant:
			flush()
			var parts []*genai.Part
			if turn.Text != "" {
				parts = append(parts, &genai.Part{Text: turn.Text})
			}
			for _, call := range turn.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args},
					ThoughtSignature: call.Signature,
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		default:
			flush()
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: turn.Text}},
			})
		}
	}
	flush()
	return contents
}

// geminiReply reads the first candidate. Thought parts are skipped; a response
// without candidates yields an empty reply.
func geminiReply(resp *genai.GenerateContentResponse) *domain.EngineReply {
	reply := &domain.EngineReply{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return reply
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if fc := part.FunctionCall; fc != nil {
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
				ID:        fc.ID,
				Name:      fc.Name,
				Args:      args,
				Signature: part.ThoughtSignature,
			})
			continue
		}
		text.WriteString(part.Text)
	}
	reply.Text = text.String()
	return reply
}

var _ domain.ReasoningEngine = (*GeminiEngine)(nil)
