// Package tools defines the static shape of a tool: its identifier, schema,
// and the per-provider binding an AgentDefinition uses to select which tools
// it may call.
package tools

import "encoding/json"

// Ident is the strong type for a fully qualified tool identifier
// (e.g. "filesystem.read_file"). Use this type in maps and APIs to avoid
// accidental mixing with free-form strings.
type Ident string

type (
	// Descriptor is what list_tools(provider) returns for a single tool:
	// enough metadata for the executor to build a model.ToolDefinition and
	// for the ToolRuntime to validate and dispatch a call.
	Descriptor struct {
		Name        Ident
		Provider    string
		Description string
		InputSchema json.RawMessage

		// Idempotent marks a tool whose repeated execution with the same
		// input has no additional side effects, so ToolRuntime may retry it
		// automatically on a transport failure without surfacing a partial
		// side effect to the model.
		Idempotent bool

		// DisplayHint is a text/template string for a human-readable label
		// of a call, written against the tool call's input (e.g. "reading
		// {{.path}}"). The runtime carries it on the descriptor and does
		// not render it; empty means no hint.
		DisplayHint string
	}

	// Filter selects which of a provider's tools an agent may call.
	// Exactly one of the two forms applies: All, or Selected with specific
	// names (and optional per-name description overrides).
	Filter struct {
		All      bool
		Selected []SelectedTool
	}

	// SelectedTool names one tool to include from a Filter, with an
	// optional override for its Description as seen by the model.
	SelectedTool struct {
		Name        string
		Description string
	}

	// Binding is the part of an AgentDefinition that names a tool provider
	// and which of its tools are in scope.
	Binding struct {
		ServerName string
		Filter     Filter
	}

	// Call is a single tool invocation requested by the model: an
	// identifier correlating it to its eventual result, the tool name, and
	// its JSON input.
	Call struct {
		ToolCallID string
		ToolName   Ident
		Input      json.RawMessage
	}
)

// Matches reports whether name is in scope under f.
func (f Filter) Matches(name string) bool {
	if f.All {
		return true
	}
	for _, s := range f.Selected {
		if s.Name == name {
			return true
		}
	}
	return false
}

// DescriptionFor returns the description override for name under f, if any,
// and whether one was found.
func (f Filter) DescriptionFor(name string) (string, bool) {
	for _, s := range f.Selected {
		if s.Name == name && s.Description != "" {
			return s.Description, true
		}
	}
	return "", false
}
