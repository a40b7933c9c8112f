package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"titanflow/internal/domain"
	"titanflow/internal/tooling"
)

// scriptEngine replays canned replies and records every conversation it sees.
type scriptEngine struct {
	mu      sync.Mutex
	replies []*domain.EngineReply
	err     error
	seen    [][]domain.Turn
}

func (e *scriptEngine) Reply(_ context.Context, turns []domain.Turn, _ []domain.ToolDefinition) (*domain.EngineReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, append([]domain.Turn(nil), turns...))
	if e.err != nil {
		return nil, e.err
	}
	i := len(e.seen) - 1
	if i >= len(e.replies) {
		return nil, errors.New("script exhausted")
	}
	return e.replies[i], nil
}

func (e *scriptEngine) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// loopEngine requests the same tool forever.
type loopEngine struct {
	mu sync.Mutex
	n  int
}

func (e *loopEngine) Reply(context.Context, []domain.Turn, []domain.ToolDefinition) (*domain.EngineReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	return toolReply(tooling.ToolCalculateLeadScore, map[string]any{"client_name": "Acme", "industry": "Tech"}), nil
}

// fakeTools answers like the real tool server backed by a one-entry catalog.
type fakeTools struct {
	mu     sync.Mutex
	calls  []domain.ToolCall
	nextID int
}

func (f *fakeTools) Invoke(_ context.Context, name string, args map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.ToolCall{Name: name, Args: args})
	switch name {
	case tooling.ToolGetServicePrice:
		q, _ := args["service_name"].(string)
		if q == "Cloud Migration" || q == "cloud" {
			return "Service: Cloud Migration, Rate: $200/hr, Scope: Moving on-premise servers to AWS/Azure"
		}
		return "Service not found. Available: Cloud Migration, security_audit, ai_consulting, devops_pipeline."
	case tooling.ToolCalculateLeadScore:
		return "95"
	case tooling.ToolSaveQualifiedLead:
		f.nextID++
		return fmt.Sprintf("Success: Lead saved to CRM with ID #%d", f.nextID)
	}
	return "Tool Error: unknown tool"
}

func (f *fakeTools) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

func toolReply(name string, args map[string]any) *domain.EngineReply {
	return &domain.EngineReply{ToolCalls: []domain.ToolCall{{ID: "call_" + name, Name: name, Args: args}}}
}

func textReply(text string) *domain.EngineReply {
	return &domain.EngineReply{Text: text}
}

const approvedJSON = "```json\n" + `{
  "status": "approved",
  "client_name": "Acme Corp",
  "detected_service": "Cloud Migration",
  "lead_score": 95,
  "crm_action": "Saved to DB ID #1",
  "draft_email": "Dear Acme Corp, thank you for your request."
}` + "\n```"

const declinedJSON = `Here is the result: {"status":"declined","client_name":"Globex","detected_service":"Blockchain Audit","lead_score":60,"crm_action":"Not Saved","draft_email":"Dear Globex, unfortunately we do not offer this service."}`

func acmeScript() *scriptEngine {
	return &scriptEngine{replies: []*domain.EngineReply{
		toolReply(tooling.ToolGetServicePrice, map[string]any{"service_name": "Cloud Migration"}),
		toolReply(tooling.ToolCalculateLeadScore, map[string]any{"client_name": "Acme Corp", "industry": "Tech"}),
		toolReply(tooling.ToolSaveQualifiedLead, map[string]any{"client_name": "Acme Corp", "service": "Cloud Migration", "score": float64(95)}),
		textReply(approvedJSON),
	}}
}
