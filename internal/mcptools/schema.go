package mcptools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// generateSchema reflects a Go struct type into the JSON Schema object an
// mcp.Tool's InputSchema expects, using jsonschema struct tags instead of a
// hand-written schema string. Supported tags, same as the reflector's own:
//
//	json:"name,omitempty"            - parameter name, optional marker
//	jsonschema:"required"            - explicitly mark as required
//	jsonschema:"description=..."     - parameter description
//	jsonschema:"enum=a|b|c"          - allowed values
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("mcptools: reflect schema for %T: %v", *new(T), err))
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("mcptools: decode reflected schema for %T: %v", *new(T), err))
	}
	delete(raw, "$schema")
	delete(raw, "$id")

	out, err := json.Marshal(raw)
	if err != nil {
		panic(fmt.Sprintf("mcptools: re-encode reflected schema for %T: %v", *new(T), err))
	}
	return out
}
