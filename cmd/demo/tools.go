package main

import (
	"context"
	"strings"
	"time"

	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/toolruntime"
	"github.com/distrihq/distri/tools"
)

// demoTransport is a toolruntime.Transport exercising the shapes the
// executor's loop needs to branch on: an ordinary successful result
// (search), a result large enough to trigger artifact offload (big_fetch),
// a suspension requesting user input (ask_user), a call that honours ctx
// cancellation (slow), and a call that never lets the agent reach a final
// answer (loop), used to exhaust an agent's iteration budget.
type demoTransport struct{}

const objectSchema = `{"type":"object"}`

func (demoTransport) ListTools(context.Context) ([]tools.Descriptor, error) {
	return []tools.Descriptor{
		{Name: "search", Provider: "demo", Description: "Search the knowledge base", InputSchema: []byte(objectSchema), Idempotent: true},
		{Name: "big_fetch", Provider: "demo", Description: "Fetch a large document", InputSchema: []byte(objectSchema), Idempotent: true},
		{Name: "ask_user", Provider: "demo", Description: "Ask the user a clarifying question", InputSchema: []byte(objectSchema)},
		{Name: "slow", Provider: "demo", Description: "A tool that takes a while", InputSchema: []byte(objectSchema), Idempotent: true},
		{Name: "loop", Provider: "demo", Description: "Always reports partial progress", InputSchema: []byte(objectSchema), Idempotent: true},
	}, nil
}

func (demoTransport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	switch call.ToolName {
	case "search":
		return encodedResponse(call, "Distri is a multi-agent orchestration runtime.")

	case "big_fetch":
		// Comfortably over artifact.DefaultTextThreshold so the executor's
		// ArtifactStore offload path replaces this with an ArtifactPart.
		body := strings.Repeat("distri orchestration runtime documentation. ", 200)
		return encodedResponse(call, body)

	case "ask_user":
		return toolruntime.ToolResponse{
			ToolCallID: call.ToolCallID, ToolName: string(call.ToolName),
			Status: toolruntime.StatusInputRequired, Prompt: "Which environment should I target?",
		}, nil

	case "slow":
		select {
		case <-time.After(3 * time.Second):
			return encodedResponse(call, "done sleeping")
		case <-ctx.Done():
			return toolruntime.ToolResponse{}, ctx.Err()
		}

	case "loop":
		return encodedResponse(call, "still working, no final answer yet")

	default:
		return toolruntime.ToolResponse{}, &demoUnknownToolError{name: string(call.ToolName)}
	}
}

type demoUnknownToolError struct{ name string }

func (e *demoUnknownToolError) Error() string { return "demo: unknown tool " + e.name }

func encodedResponse(call tools.Call, text string) (toolruntime.ToolResponse, error) {
	parts, err := model.EncodeParts([]model.Part{model.TextPart{Text: text}})
	if err != nil {
		return toolruntime.ToolResponse{}, err
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: parts}, nil
}
