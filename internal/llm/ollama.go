package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"titanflow/internal/domain"
)

const (
	// DefaultOllamaURL is the address of a local Ollama daemon.
	DefaultOllamaURL = "http://localhost:11434"
	// DefaultOllamaModel must support tool calling.
	DefaultOllamaModel = "llama3.1"
)

// OllamaEngine calls a local Ollama daemon through its chat endpoint.
type OllamaEngine struct {
	client *api.Client
	model  string
}

// NewOllamaEngine returns an Ollama-backed ReasoningEngine.
func NewOllamaEngine(model, baseURL string, httpClient *http.Client) (*OllamaEngine, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaEngine{client: api.NewClient(u, httpClient), model: model}, nil
}

// Reply implements domain.ReasoningEngine. Streaming is disabled, so the
// callback normally fires once; partial chunks are concatenated regardless.
func (e *OllamaEngine) Reply(ctx context.Context, turns []domain.Turn, tools []domain.ToolDefinition) (*domain.EngineReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []api.Message
	if err := roundTrip(ollamaMessages(turns), &messages); err != nil {
		return nil, fmt.Errorf("ollama: messages: %w", err)
	}
	var apiTools []api.Tool
	if len(tools) > 0 {
		defs, err := ollamaToolDefs(tools)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		if err := roundTrip(defs, &apiTools); err != nil {
			return nil, fmt.Errorf("ollama: tools: %w", err)
		}
	}
	stream := false
	req := &api.ChatRequest{
		Model:    e.model,
		Messages: messages,
		Tools:    apiTools,
		Stream:   &stream,
	}

	reply := &domain.EngineReply{}
	var text strings.Builder
	var callErr error
	err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		for _, tc := range resp.Message.ToolCalls {
			raw, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				callErr = fmt.Errorf("call %s: %w", tc.Function.Name, err)
				return callErr
			}
			args, err := decodeArgs(string(raw))
			if err != nil {
				callErr = fmt.Errorf("call %s: %w", tc.Function.Name, err)
				return callErr
			}
			reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
		}
		return nil
	})
	if callErr != nil {
		return nil, fmt.Errorf("ollama: %w", callErr)
	}
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}
	reply.Text = text.String()
	return reply, nil
}

// ollamaMessages builds the wire form of the transcript. The SDK message
// types are filled through JSON so argument maps keep their shape across
// SDK versions.
func ollamaMessages(turns []domain.Turn) []map[string]any {
	out := make([]map[string]any, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleAssistant:
			msg := map[string]any{"role": "assistant", "content": turn.Text}
			if len(turn.ToolCalls) > 0 {
				calls := make([]map[string]any, 0, len(turn.ToolCalls))
				for _, call := range turn.ToolCalls {
					args := call.Args
					if args == nil {
						args = map[string]any{}
					}
					calls = append(calls, map[string]any{
						"function": map[string]any{"name": call.Name, "arguments": args},
					})
				}
				msg["tool_calls"] = calls
			}
			out = append(out, msg)
		case domain.RoleTool:
			if turn.Result == nil {
				continue
			}
			out = append(out, map[string]any{
				"role":      "tool",
				"content":   turn.Result.Content,
				"tool_name": turn.Result.Name,
			})
		default:
			out = append(out, map[string]any{"role": "user", "content": turn.Text})
		}
	}
	return out
}

func ollamaToolDefs(tools []domain.ToolDefinition) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		params, err := schemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  params,
			},
		})
	}
	return out, nil
}

func roundTrip(in any, out any) error {
	raw, err := marshalFunc(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

var _ domain.ReasoningEngine = (*OllamaEngine)(nil)
