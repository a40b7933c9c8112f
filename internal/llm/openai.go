package llm

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"titanflow/internal/domain"
)

// DefaultOpenAIModel is used when the engine config leaves the model empty.
const DefaultOpenAIModel = "gpt-4.1-mini"

// OpenAIEngine calls the OpenAI Responses API. Any OpenAI-compatible endpoint
// works through baseURL.
type OpenAIEngine struct {
	client openai.Client
	model  string
}

// NewOpenAIEngine returns an OpenAI-backed ReasoningEngine. Extra request
// options are appended after the key and base URL.
func NewOpenAIEngine(apiKey, model, baseURL string, extra ...option.RequestOption) *OpenAIEngine {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIEngine{client: openai.NewClient(opts...), model: model}
}

// Reply implements domain.ReasoningEngine.
func (e *OpenAIEngine) Reply(ctx context.Context, turns []domain.Turn, tools []domain.ToolDefinition) (*domain.EngineReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	input, err := openAIInput(turns)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	params := responses.ResponseNewParams{
		Model: e.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: input},
	}
	if len(tools) > 0 {
		if params.Tools, err = openAITools(tools); err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
	}
	resp, err := e.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: create response: %w", err)
	}
	return openAIReply(resp)
}

func openAIInput(turns []domain.Turn) (responses.ResponseInputParam, error) {
	items := make(responses.ResponseInputParam, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case domain.RoleAssistant:
			if turn.Text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(turn.Text, responses.EasyInputMessageRoleAssistant))
			}
			for _, call := range turn.ToolCalls {
				args, err := encodeArgs(call.Args)
				if err != nil {
					return nil, err
				}
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, call.ID, call.Name))
			}
		case domain.RoleTool:
			if turn.Result == nil {
				continue
			}
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(turn.Result.CallID, turn.Result.Content))
		default:
			items = append(items, responses.ResponseInputItemParamOfMessage(turn.Text, responses.EasyInputMessageRoleUser))
		}
	}
	return items, nil
}

func openAITools(tools []domain.ToolDefinition) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params, err := schemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  params,
				Strict:      openai.Bool(false),
			},
		})
	}
	return out, nil
}

func openAIReply(resp *responses.Response) (*domain.EngineReply, error) {
	reply := &domain.EngineReply{}
	if resp == nil {
		return reply, nil
	}
	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}
		args, err := decodeArgs(item.Arguments)
		if err != nil {
			return nil, fmt.Errorf("openai: call %s: %w", item.Name, err)
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{ID: item.CallID, Name: item.Name, Args: args})
	}
	reply.Text = resp.OutputText()
	return reply, nil
}

var _ domain.ReasoningEngine = (*OpenAIEngine)(nil)
