// Package builtin implements toolruntime.Transport for tools registered
// in-process and invoked by direct function call.
package builtin

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/tools"
	"github.com/distrihq/distri/toolruntime"
)

// Func is the implementation behind a single builtin tool.
type Func func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// entry pairs a tool's static descriptor with its implementation.
type entry struct {
	descriptor tools.Descriptor
	fn         Func
}

// Transport is a toolruntime.Transport backed by an in-process function
// registry.
type Transport struct {
	mu      sync.RWMutex
	entries map[tools.Ident]entry
}

// New returns an empty builtin Transport.
func New() *Transport {
	return &Transport{entries: make(map[tools.Ident]entry)}
}

// Register adds a tool to the registry.
func (t *Transport) Register(descriptor tools.Descriptor, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[descriptor.Name] = entry{descriptor: descriptor, fn: fn}
}

func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]tools.Descriptor, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *Transport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	t.mu.RLock()
	e, ok := t.entries[call.ToolName]
	t.mu.RUnlock()
	if !ok {
		return toolruntime.ToolResponse{}, &distrierr.UnknownTool{Tool: string(call.ToolName)}
	}
	parts, err := e.fn(ctx, call.Input)
	if err != nil {
		return toolruntime.ToolResponse{}, &distrierr.ToolExecution{Tool: string(call.ToolName), Cause: err}
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: parts}, nil
}
