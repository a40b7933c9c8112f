package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"titanflow/internal/domain"
	"titanflow/internal/tooling"
)

var (
	decisionSchemaOnce sync.Once
	decisionSchema     string
)

// DecisionSchema returns the JSON Schema every final answer must satisfy.
func DecisionSchema() string {
	decisionSchemaOnce.Do(func() {
		decisionSchema = tooling.GenerateSchema(domain.Decision{})
	})
	return decisionSchema
}

// decisionFields are the keys kept from a payload; anything else the engine
// adds is dropped before validation.
var decisionFields = []string{"status", "client_name", "detected_service", "lead_score", "crm_action", "draft_email"}

// ParseDecision decodes a sanitized payload and validates it against
// DecisionSchema. The status value is matched case-insensitively.
func ParseDecision(payload string) (*domain.Decision, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("empty payload")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	known := make(map[string]any, len(decisionFields))
	for _, k := range decisionFields {
		if v, ok := raw[k]; ok {
			known[k] = v
		}
	}
	if s, ok := known["status"].(string); ok {
		known["status"] = strings.ToLower(strings.TrimSpace(s))
	}

	normalized, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if err := tooling.ValidateAgainstSchema(normalized, DecisionSchema()); err != nil {
		return nil, err
	}

	var d domain.Decision
	if err := json.Unmarshal(normalized, &d); err != nil {
		return nil, fmt.Errorf("decode decision: %w", err)
	}
	return &d, nil
}

var leadIDPattern = regexp.MustCompile(`ID #(\d+)`)

// saveResults returns the results of every save_qualified_lead dispatch.
func saveResults(turns []domain.Turn) []string {
	var out []string
	for _, t := range turns {
		if t.Role == domain.RoleTool && t.Result != nil && t.Result.Name == tooling.ToolSaveQualifiedLead {
			out = append(out, t.Result.Content)
		}
	}
	return out
}

// checkLeadInvariant verifies that an approved decision was persisted
// exactly once and a declined one never. When strict, the crm_action must
// also quote the lead ID the persistence tool returned.
func checkLeadInvariant(d *domain.Decision, turns []domain.Turn, strict bool) error {
	saves := saveResults(turns)
	switch d.Status {
	case domain.DecisionApproved:
		if len(saves) != 1 {
			return fmt.Errorf("%w: approved with %d %s calls", ErrLeadInvariant, len(saves), tooling.ToolSaveQualifiedLead)
		}
		if !strict {
			return nil
		}
		m := leadIDPattern.FindStringSubmatch(saves[0])
		if m == nil {
			return fmt.Errorf("%w: lead was not saved: %s", ErrLeadInvariant, saves[0])
		}
		if !strings.Contains(d.CRMAction, m[1]) {
			return fmt.Errorf("%w: crm_action %q does not reference lead #%s", ErrLeadInvariant, d.CRMAction, m[1])
		}
	case domain.DecisionDeclined:
		if len(saves) != 0 {
			return fmt.Errorf("%w: declined after %d %s calls", ErrLeadInvariant, len(saves), tooling.ToolSaveQualifiedLead)
		}
	}
	return nil
}
