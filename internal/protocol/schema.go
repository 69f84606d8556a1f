package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/proftrace/dataplane/internal/errs"
)

// filterSettingsSchema describes the accepted shape of a "filter_settings"
// command's data object, the same way the teacher declares its own tool
// input shapes with jsonschema.Schema literals.
var filterSettingsSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"type": {
			Type: "string",
			Enum: []any{"allow", "deny", "python", "none"},
		},
		"conditions": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string"},
			},
		},
		"script": {Type: "string"},
		"mark":   {Type: "boolean"},
	},
	Required: []string{"type", "mark"},
}

var resolvedFilterSettingsSchema *jsonschema.Resolved

func init() {
	resolved, err := filterSettingsSchema.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid filter_settings schema: %v", err))
	}
	resolvedFilterSettingsSchema = resolved
}

// ValidateFilterSettings checks raw (the "data" object of a filter_settings
// command) against the schema before it's handed to chainfilter.New. A
// shape mismatch is a schema error (§7), not a panic or silent default.
func ValidateFilterSettings(raw json.RawMessage) error {
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return errs.NewSchemaError("filter_settings", "not valid JSON", err)
	}
	if err := resolvedFilterSettingsSchema.Validate(instance); err != nil {
		return errs.NewSchemaError("filter_settings", "does not match schema", err)
	}
	return nil
}
