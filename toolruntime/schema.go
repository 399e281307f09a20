package toolruntime

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/tools"
)

// descriptorFor returns the cached Descriptor for name under provider, if
// any tool list has been cached for that provider yet.
func (r *Runtime) descriptorFor(provider string, name tools.Ident) (tools.Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.descriptors[provider] {
		if d.Name == name {
			return d, true
		}
	}
	return tools.Descriptor{}, false
}

// validateInput checks call.Input against descriptor.InputSchema, compiling
// the schema fresh on every call: descriptors change rarely enough relative
// to call volume that caching the compiled schema is not worth the
// invalidation bookkeeping.
func validateInput(call tools.Call, schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}

	var schemaDoc any
	if err := json.Unmarshal(schema, &schemaDoc); err != nil {
		return &distrierr.InvalidToolInput{Tool: string(call.ToolName), Cause: fmt.Errorf("unmarshal schema: %w", err)}
	}

	input := call.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var payloadDoc any
	if err := json.Unmarshal(input, &payloadDoc); err != nil {
		return &distrierr.InvalidToolInput{Tool: string(call.ToolName), Cause: fmt.Errorf("unmarshal input: %w", err)}
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(string(call.ToolName)+".json", schemaDoc); err != nil {
		return &distrierr.InvalidToolInput{Tool: string(call.ToolName), Cause: fmt.Errorf("add schema resource: %w", err)}
	}
	compiled, err := c.Compile(string(call.ToolName) + ".json")
	if err != nil {
		return &distrierr.InvalidToolInput{Tool: string(call.ToolName), Cause: fmt.Errorf("compile schema: %w", err)}
	}
	if err := compiled.Validate(payloadDoc); err != nil {
		return &distrierr.InvalidToolInput{Tool: string(call.ToolName), Cause: err}
	}
	return nil
}
