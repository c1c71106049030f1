package llm

import "github.com/joseph-ayodele/responder-tracker/constants"

// ProposalSchemaName is sent with structured-output requests.
const ProposalSchemaName = "responder_status"

// BuildProposalJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic map.
// We pass this to the backend as a structured output constraint and also use it locally to validate.
// Every field is required and no extra keys are allowed. Only keywords that
// strict structured-output backends accept are used; ranges are enforced in sanitize.
func BuildProposalJSONSchema() map[string]any {
	props := map[string]any{
		"vehicle":    map[string]any{"type": "string"},
		"eta_iso":    map[string]any{"type": "string"},
		"status":     map[string]any{"type": "string", "enum": constants.StatusStrings()},
		"evidence":   map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"vehicle", "eta_iso", "status", "evidence", "confidence"},
	}
}
