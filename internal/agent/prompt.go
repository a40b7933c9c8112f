package agent

import "strings"

// DefaultCorrectionPrompt is sent once when the final answer does not parse.
const DefaultCorrectionPrompt = "Output ONLY the valid JSON object."

const promptTemplate = `You are an Autonomous Sales Agent.
RFP Content:
{{document}}

EXECUTION PLAN:
1. Extract Client Name & Service.
2. CALL 'get_service_price'.
3. CALL 'calculate_lead_score'.

DECISION LOGIC:
- If Price is found AND Score > 10 -> Status is 'approved'.
- If Price is missing  -> Status is 'declined'.

CRITICAL ACTION:
- IF (and ONLY IF) the status is 'approved', you MUST CALL 'save_qualified_lead' to record them in the DB.

FINAL OUTPUT SCHEMA (JSON ONLY):
{
    "status": "approved" or "declined",
    "client_name": "...",
    "detected_service": "...",
    "lead_score": 0,
    "crm_action": "Saved to DB ID #..." or "Not Saved",
    "draft_email": "..."
}
`

// BuildPrompt embeds document in the fixed instruction prompt.
func BuildPrompt(document string) string {
	return strings.Replace(promptTemplate, "{{document}}", document, 1)
}
