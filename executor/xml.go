package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// parsedToolCall is one {name, input} pair extracted from an XML-embedded
// tool-call block.
type parsedToolCall struct {
	Name  string
	Input json.RawMessage
}

// toolCallsBlock matches a <tool_calls>...</tool_calls> wrapper. The
// executor only looks inside this block for <invoke> tags; text outside it
// is treated as the model's ordinary prose.
var toolCallsBlock = regexp.MustCompile(`(?s)<tool_calls>(.*?)</tool_calls>`)

// invokeTag matches one <invoke name="...">...</invoke> entry and captures
// its name attribute and inner body.
var invokeTag = regexp.MustCompile(`(?s)<invoke\s+name="([^"]+)"\s*>(.*?)</invoke>`)

// parameterTag matches one <parameter name="...">value</parameter> entry
// inside an <invoke> body.
var parameterTag = regexp.MustCompile(`(?s)<parameter\s+name="([^"]+)"\s*>(.*?)</parameter>`)

// parseXMLToolCalls reads the first <tool_calls> block in text for
// <invoke name="...">...</invoke> entries, each holding zero or more
// <parameter name="...">value</parameter> children that become the tool's
// JSON input object; any later <tool_calls> block is ignored. Returns an
// empty, nil-error result when no <tool_calls> block is present at all (a
// plain final answer); returns an error when the block is present but
// cannot be parsed into valid calls.
func parseXMLToolCalls(text string) ([]parsedToolCall, error) {
	block := toolCallsBlock.FindStringSubmatch(text)
	if block == nil {
		return nil, nil
	}

	invokes := invokeTag.FindAllStringSubmatch(block[1], -1)
	if invokes == nil {
		return nil, fmt.Errorf("executor: <tool_calls> block has no <invoke> entries")
	}

	calls := make([]parsedToolCall, 0, len(invokes))
	for _, m := range invokes {
		name := strings.TrimSpace(m[1])
		if name == "" {
			return nil, fmt.Errorf("executor: <invoke> missing a tool name")
		}
		input, err := parseInvokeParameters(m[2])
		if err != nil {
			return nil, fmt.Errorf("executor: invoke %q: %w", name, err)
		}
		calls = append(calls, parsedToolCall{Name: name, Input: input})
	}
	return calls, nil
}

// parseInvokeParameters assembles an <invoke> body's <parameter> children
// into a JSON object. Each parameter's text is parsed as JSON first (so
// numbers, bools, and nested objects round-trip); on failure it falls back
// to a JSON string literal of the raw text.
func parseInvokeParameters(body string) (json.RawMessage, error) {
	params := parameterTag.FindAllStringSubmatch(body, -1)
	obj := make(map[string]json.RawMessage, len(params))
	for _, p := range params {
		name := strings.TrimSpace(p[1])
		raw := strings.TrimSpace(p[2])
		if name == "" {
			continue
		}
		var probe any
		if err := json.Unmarshal([]byte(raw), &probe); err == nil {
			obj[name] = json.RawMessage(raw)
			continue
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		obj[name] = encoded
	}
	return json.Marshal(obj)
}

// xmlRetryReminder is appended to the conversation as a system nudge when a
// parse attempt fails and retries remain.
const xmlRetryReminder = "Your previous response could not be parsed as a tool call. " +
	"Reply again using the exact <tool_calls><invoke name=\"...\"><parameter name=\"...\">...</parameter></invoke></tool_calls> format, or give a final answer with no <tool_calls> block."
