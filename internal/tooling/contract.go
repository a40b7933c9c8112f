package tooling

import (
	"titanflow/internal/domain"
)

// Tool names of the lead-qualification contract. Engines address tools by
// these exact strings.
const (
	ToolGetServicePrice    = "get_service_price"
	ToolCalculateLeadScore = "calculate_lead_score"
	ToolSaveQualifiedLead  = "save_qualified_lead"
)

// PriceInput is the argument object of get_service_price.
type PriceInput struct {
	ServiceName string `json:"service_name" jsonschema_description:"Service to look up; matched as a case-insensitive substring of catalog names"`
}

// ScoreInput is the argument object of calculate_lead_score.
type ScoreInput struct {
	ClientName string `json:"client_name" jsonschema_description:"Client company name"`
	Industry   string `json:"industry" jsonschema_description:"Client industry, e.g. Tech or Retail"`
}

// SaveLeadInput is the argument object of save_qualified_lead.
type SaveLeadInput struct {
	ClientName string `json:"client_name" jsonschema_description:"Client company name"`
	Service    string `json:"service" jsonschema_description:"Service the client is interested in"`
	Score      int    `json:"score" jsonschema_description:"Lead score returned by calculate_lead_score"`
}

// NewLeadRegistry registers the three lead-qualification tools in contract
// order, backed by catalog and leads.
func NewLeadRegistry(catalog domain.Catalog, leads domain.LeadStore) *ToolRegistry {
	reg := NewToolRegistry()
	for _, t := range []SchemaTool{
		&PriceTool{Catalog: catalog},
		&ScoreTool{},
		&LeadTool{Leads: leads},
	} {
		if err := reg.Register(t); err != nil {
			panic(err)
		}
	}
	return reg
}

// Contract returns the tool definitions advertised to reasoning engines, in a
// fixed order. It needs no backing store, so the orchestrator can describe
// tools that live in another process.
func Contract() []domain.ToolDefinition {
	return NewLeadRegistry(nil, nil).Definitions()
}
