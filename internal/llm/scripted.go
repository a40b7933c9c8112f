package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"titanflow/internal/domain"
)

// ErrScriptExhausted is returned when a run asks for more replies than the
// script holds.
var ErrScriptExhausted = errors.New("script exhausted")

// ScriptedEngine replays a fixed list of replies. The reply for a round trip
// is picked by the number of assistant turns already in the transcript, so
// one engine serves any number of concurrent runs.
type ScriptedEngine struct {
	replies []domain.EngineReply
}

// NewScriptedEngine returns an engine replaying replies in order.
func NewScriptedEngine(replies []domain.EngineReply) *ScriptedEngine {
	return &ScriptedEngine{replies: replies}
}

// readFile is os.ReadFile. Package-level var for test injection.
var readFile = os.ReadFile

// LoadScript reads a JSON array of replies, e.g.
//
//	[{"toolCalls":[{"name":"get_service_price","args":{"service_name":"AI"}}]},
//	 {"text":"{\"status\":\"declined\", ...}"}]
func LoadScript(path string) (*ScriptedEngine, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("scripted: read %s: %w", path, err)
	}
	var replies []domain.EngineReply
	if err := json.Unmarshal(raw, &replies); err != nil {
		return nil, fmt.Errorf("scripted: parse %s: %w", path, err)
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("scripted: %s holds no replies", path)
	}
	return NewScriptedEngine(replies), nil
}

// Reply implements domain.ReasoningEngine.
func (s *ScriptedEngine) Reply(ctx context.Context, turns []domain.Turn, _ []domain.ToolDefinition) (*domain.EngineReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := 0
	for _, t := range turns {
		if t.Role == domain.RoleAssistant {
			idx++
		}
	}
	if idx >= len(s.replies) {
		return nil, fmt.Errorf("scripted: reply %d of %d: %w", idx+1, len(s.replies), ErrScriptExhausted)
	}
	src := s.replies[idx]
	reply := &domain.EngineReply{Text: src.Text}
	for j, call := range src.ToolCalls {
		if call.ID == "" {
			call.ID = fmt.Sprintf("call_%d_%d", idx, j)
		}
		args := make(map[string]any, len(call.Args))
		for k, v := range call.Args {
			args[k] = v
		}
		call.Args = args
		reply.ToolCalls = append(reply.ToolCalls, call)
	}
	return reply, nil
}

var _ domain.ReasoningEngine = (*ScriptedEngine)(nil)
