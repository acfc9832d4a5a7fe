package conditions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Per-kind JSON Schemas for condition parameter blobs. Validated at
// escrow creation; evaluation assumes well-formed params.
var paramSchemas = map[contracts.ConditionKind]string{
	contracts.ConditionTimeBased: `{
		"type": "object",
		"properties": {
			"not_before": {"type": "integer", "minimum": 0}
		},
		"required": ["not_before"],
		"additionalProperties": false
	}`,
	contracts.ConditionOracleBased: `{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "minLength": 1}
		},
		"required": ["expression"],
		"additionalProperties": false
	}`,
	contracts.ConditionManualApproval: `{
		"type": "object",
		"properties": {
			"note": {"type": "string"}
		},
		"additionalProperties": false
	}`,
}

var compiledSchemas = func() map[contracts.ConditionKind]*jsonschema.Schema {
	out := make(map[contracts.ConditionKind]*jsonschema.Schema, len(paramSchemas))
	for kind, src := range paramSchemas {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := fmt.Sprintf("https://covenant.schemas.local/conditions/%s.schema.json", strings.ToLower(string(kind)))
		if err := c.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("condition schema %s: %v", kind, err))
		}
		out[kind] = c.MustCompile(url)
	}
	return out
}()

// ValidateParams checks a condition's parameter blob against the schema
// for its kind, and for oracle conditions additionally compiles the
// expression. Returns contracts.ErrInvalidAmount-style typed errors only
// from workflows; here plain errors describe the defect for logs.
func (e *Evaluator) ValidateParams(cond contracts.Condition) error {
	schema, ok := compiledSchemas[cond.Kind]
	if !ok {
		return fmt.Errorf("unknown condition kind %q", cond.Kind)
	}
	params := cond.Params
	if len(params) == 0 {
		// an absent blob means "no parameters", which the kind's schema
		// may still reject
		params = json.RawMessage(`{}`)
	}
	var decoded interface{}
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("params are not valid JSON: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("params schema: %w", err)
	}
	if cond.Kind == contracts.ConditionOracleBased {
		var p oracleParams
		if err := json.Unmarshal(params, &p); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
		if err := e.cel.Compile(p.Expression); err != nil {
			return err
		}
	}
	return nil
}
