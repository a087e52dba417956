package projects

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// planSchemaJSON constrains the milestone plan a freelancer attaches to a
// proposal. Amounts are integer cents; every milestone needs a title.
const planSchemaJSON = `{
	"type": "array",
	"minItems": 1,
	"maxItems": 20,
	"items": {
		"type": "object",
		"required": ["title", "amount_cents"],
		"properties": {
			"title": {"type": "string", "minLength": 1, "maxLength": 200},
			"description": {"type": "string", "maxLength": 2000},
			"amount_cents": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}
}`

var planSchema = jsonschema.MustCompileString("https://gigchain.io/schemas/milestone_plan.json", planSchemaJSON)

// validatePlan hard-rejects a malformed milestone plan before it is stored.
func validatePlan(raw json.RawMessage) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON", ErrValidation)
	}
	if err := planSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
