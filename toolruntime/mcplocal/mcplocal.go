// Package mcplocal implements toolruntime.Transport for a provider whose MCP
// server runs in-process and is reached over an in-memory call, skipping the
// wire encoding that mcpchild/mcpremote need for an out-of-process server.
package mcplocal

import (
	"context"
	"encoding/json"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/tools"
	"github.com/distrihq/distri/toolruntime"
)

// Server is the in-process MCP server interface a provider implements.
type Server interface {
	ListTools(ctx context.Context) ([]tools.Descriptor, error)
	CallTool(ctx context.Context, name tools.Ident, input json.RawMessage) (json.RawMessage, error)
}

// Transport adapts a Server to toolruntime.Transport.
type Transport struct {
	server Server
}

// New wraps server as a toolruntime.Transport.
func New(server Server) *Transport {
	return &Transport{server: server}
}

func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	return t.server.ListTools(ctx)
}

func (t *Transport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	parts, err := t.server.CallTool(ctx, call.ToolName, call.Input)
	if err != nil {
		return toolruntime.ToolResponse{}, &distrierr.ToolExecution{Tool: string(call.ToolName), Cause: err}
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: parts}, nil
}
