package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecision_JSON_ShouldUseWireFieldNames(t *testing.T) {
	d := Decision{
		Status:          DecisionApproved,
		ClientName:      "Acme Corp",
		DetectedService: "AI Consulting & Agents",
		LeadScore:       87,
		CRMAction:       "lead saved",
		DraftEmail:      "Hello",
	}

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"status", "client_name", "detected_service", "lead_score", "crm_action", "draft_email"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if raw["status"] != "approved" {
		t.Errorf("status: want approved, got %v", raw["status"])
	}
}

func TestToolCall_JSON_ShouldNotExposeSignature(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "get_service_price", Args: map[string]any{"service_name": "AI"}, Signature: []byte("opaque")}

	data, err := json.Marshal(call)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(data), "opaque") || strings.Contains(strings.ToLower(string(data)), "signature") {
		t.Errorf("signature leaked: %s", data)
	}
}

func TestTurn_JSON_ShouldOmitEmptyParts(t *testing.T) {
	data, err := json.Marshal(Turn{Role: RoleUser, Text: "RFP"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"role":"user","text":"RFP"}` {
		t.Errorf("unexpected encoding %s", data)
	}
}

func TestEngineReply_WantsTools(t *testing.T) {
	tests := []struct {
		name  string
		reply *EngineReply
		want  bool
	}{
		{"nil", nil, false},
		{"text", &EngineReply{Text: "{}"}, false},
		{"tool calls", &EngineReply{ToolCalls: []ToolCall{{Name: "x"}}}, true},
		{"both", &EngineReply{Text: "thinking", ToolCalls: []ToolCall{{Name: "x"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reply.WantsTools(); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConfig_JSON_ShouldOmitUnsetOptionalFields(t *testing.T) {
	data, err := json.Marshal(Config{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{"authToken", "scriptPath", "recycle", "command"} {
		if strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("%s should be omitted when empty: %s", key, data)
		}
	}
}
