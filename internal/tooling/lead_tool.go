package tooling

import (
	"context"
	"encoding/json"
	"fmt"

	"titanflow/internal/domain"
)

// LeadTool persists an approved lead to the CRM ledger.
type LeadTool struct {
	Leads domain.LeadStore
}

func (t *LeadTool) Name() string { return ToolSaveQualifiedLead }

func (t *LeadTool) Description() string {
	return "Saves a qualified lead into the internal CRM database. ONLY call this if the lead is 'Approved'."
}

func (t *LeadTool) Definition() string { return GenerateSchema(SaveLeadInput{}) }

// Call never returns an error for storage failures: they come back as the
// "Error saving lead" text so the engine can read them.
func (t *LeadTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var in SaveLeadInput
	if err := decodeArgs(t, args, &in); err != nil {
		return "", fmt.Errorf("%s: %w", t.Name(), err)
	}
	if t.Leads == nil {
		return "Error saving lead: lead store not configured", nil
	}

	id, err := t.Leads.SaveLead(ctx, domain.Lead{
		ClientName: in.ClientName,
		Service:    in.Service,
		Score:      in.Score,
		Status:     domain.LeadStatusNew,
	})
	if err != nil {
		return fmt.Sprintf("Error saving lead: %v", err), nil
	}
	return fmt.Sprintf("Success: Lead saved to CRM with ID #%d", id), nil
}
