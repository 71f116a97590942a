package middleware

import (
	"context"
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nexuskit/mcp-core/wire"
)

// SchemaLookup resolves the JSON Schema that should validate a given
// method's params, returning ok=false for methods with no declared schema
// (e.g. notifications, or tools registered without strict typing).
type SchemaLookup func(method string) (schema []byte, ok bool)

// Validation rejects params that fail their declared JSON Schema before the
// handler ever sees them (spec.md property P10: invalid input never reaches
// business logic). Schema authoring happens in the registry package via
// invopop/jsonschema; this middleware only evaluates the compiled schema
// against the inbound payload using gojsonschema.
type Validation struct {
	Base
	Lookup SchemaLookup
}

func NewValidation(lookup SchemaLookup) *Validation {
	return &Validation{Lookup: lookup}
}

func (v *Validation) Name() string       { return "validation" }
func (v *Validation) Priority() Priority { return PriorityHigh }

func (v *Validation) OnRequest(_ context.Context, mwctx *Context, params *json.RawMessage) error {
	if v.Lookup == nil {
		return nil
	}
	schemaBytes, ok := v.Lookup(mwctx.Method)
	if !ok {
		return nil
	}
	payload := []byte("{}")
	if params != nil && len(*params) > 0 {
		payload = *params
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
	docLoader := gojsonschema.NewBytesLoader(payload)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return wire.NewError(wire.CodeInvalidParams, "schema evaluation failed: "+err.Error())
	}
	if result.Valid() {
		return nil
	}

	return wire.NewElicitErrorFromSchemaErrors(result.Errors())
}
