package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"titanflow/internal/domain"
)

var priceTool = domain.ToolDefinition{
	Name:        "get_service_price",
	Description: "Check service price.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"service_name":{"type":"string"}},"required":["service_name"]}`),
}

// recordingServer answers every request with body and keeps the last request.
type recordingServer struct {
	*httptest.Server
	mu   sync.Mutex
	path string
	body []byte
}

func newRecordingServer(t *testing.T, status int, body string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.path, rs.body = r.URL.Path, raw
		rs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) last() (string, map[string]any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var m map[string]any
	_ = json.Unmarshal(rs.body, &m)
	return rs.path, m
}

func TestNewGeminiEngine_WhenModelEmpty_ShouldUseDefault(t *testing.T) {
	e, err := NewGeminiEngine(context.Background(), "key", "", "")
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}
	if e.model != DefaultGeminiModel {
		t.Errorf("want model %q, got %q", DefaultGeminiModel, e.model)
	}
}

func TestGeminiEngine_Reply_WhenFunctionCall_ShouldReturnToolCall(t *testing.T) {
	// Given a model answering with a function call
	srv := newRecordingServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"functionCall": {"name": "get_service_price", "args": {"service_name": "AI"}}, "thoughtSignature": "c2ln"}
		]}}]
	}`)
	e, err := NewGeminiEngine(context.Background(), "test-key", "gemini-2.5-flash", srv.URL)
	if err != nil {
		t.Fatalf("NewGeminiEngine: %v", err)
	}

	// When
	reply, err := e.Reply(context.Background(), []domain.Turn{{Role: domain.RoleUser, Text: "RFP"}}, []domain.ToolDefinition{priceTool})

	// Then
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if len(reply.ToolCalls) != 1 || reply.ToolCalls[0].Name != "get_service_price" {
		t.Fatalf("want one get_service_price call, got %+v", reply.ToolCalls)
	}
	if reply.ToolCalls[0].Args["service_name"] != "AI" {
		t.Errorf("want service_name AI, got %v", reply.ToolCalls[0].Args)
	}
	if string(reply.ToolCalls[0].Signature) != "sig" {
		t.Errorf("want thought signature preserved, got %q", reply.ToolCalls[0].Signature)
	}
	path, body := srv.last()
	if !strings.HasSuffix(path, "/models/gemini-2.5-flash:generateContent") {
		t.Errorf("unexpected path %q", path)
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("want tools advertised, got %v", body["tools"])
	}
}

func TestGeminiEngine_Reply_WhenText_ShouldReturnTextSkippingThoughts(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"text": "thinking...", "thought": true},
			{"text": "{\"status\":"},
			{"text": "\"declined\"}"}
		]}}]
	}`)
	e, _ := NewGeminiEngine(context.Background(), "k", "m", srv.URL)

	reply, err := e.Reply(context.Background(), []domain.Turn{{Role: domain.RoleUser, Text: "x"}}, nil)

	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.WantsTools() {
		t.Error("text reply should not request tools")
	}
	if reply.Text != `{"status":"declined"}` {
		t.Errorf("unexpected text %q", reply.Text)
	}
}

func TestGeminiEngine_Reply_WhenNoCandidates_ShouldReturnEmptyReply(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"candidates": []}`)
	e, _ := NewGeminiEngine(context.Background(), "k", "m", srv.URL)

	reply, err := e.Reply(context.Background(), []domain.Turn{{Role: domain.RoleUser, Text: "x"}}, nil)

	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply.Text != "" || reply.WantsTools() {
		t.Errorf("want empty reply, got %+v", reply)
	}
}

func TestGeminiEngine_Reply_WhenAPIError_ShouldReturnError(t *testing.T) {
	srv := newRecordingServer(t, http.StatusBadRequest, `{"error": {"code": 400, "message": "bad", "status": "INVALID_ARGUMENT"}}`)
	e, _ := NewGeminiEngine(context.Background(), "k", "m", srv.URL)

	_, err := e.Reply(context.Background(), []domain.Turn{{Role: domain.RoleUser, Text: "x"}}, nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gemini: generate") {
		t.Errorf("want wrapped error, got %v", err)
	}
}

func TestGeminiEngine_Reply_WhenContextCanceled_ShouldReturnError(t *testing.T) {
	e, _ := NewGeminiEngine(context.Background(), "k", "m", "http://127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Reply(ctx, nil, nil); err == nil {
		t.Error("expected error when context canceled")
	}
}

func TestGeminiContents_ShouldGroupToolResultsIntoOneUserContent(t *testing.T) {
	// Given a model turn with two calls followed by both results
	turns := []domain.Turn{
		{Role: domain.RoleUser, Text: "RFP"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
			{ID: "1", Name: "get_service_price", Args: map[string]any{"service_name": "AI"}, Signature: []byte("s")},
			{ID: "2", Name: "calculate_lead_score", Args: map[string]any{"client_name": "Acme", "industry": "tech"}},
		}},
		{Role: domain.RoleTool, Result: &domain.ToolResult{CallID: "1", Name: "get_service_price", Content: "Service: AI"}},
		{Role: domain.RoleTool, Result: &domain.ToolResult{CallID: "2", Name: "calculate_lead_score", Content: "90"}},
		{Role: domain.RoleUser, Text: "Output ONLY the valid JSON object."},
	}

	// When
	contents := geminiContents(turns)

	// Then
	if len(contents) != 4 {
		t.Fatalf("want 4 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel || len(contents[1].Parts) != 2 {
		t.Fatalf("want model content with 2 calls, got %+v", contents[1])
	}
	if string(contents[1].Parts[0].ThoughtSignature) != "s" {
		t.Error("want thought signature echoed")
	}
	results := contents[2]
	if results.Role != genai.RoleUser || len(results.Parts) != 2 {
		t.Fatalf("want one user content with 2 responses, got %+v", results)
	}
	fr := results.Parts[1].FunctionResponse
	if fr == nil || fr.Name != "calculate_lead_score" || fr.Response["result"] != "90" {
		t.Errorf("unexpected function response %+v", fr)
	}
	if contents[3].Parts[0].Text != "Output ONLY the valid JSON object." {
		t.Errorf("want trailing user text, got %+v", contents[3])
	}
}
