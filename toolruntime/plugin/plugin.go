// Package plugin implements toolruntime.Transport for tools loaded from a
// content-addressed artifact and executed inside a sandboxed host process
// (an embedded script VM), reached over gRPC using a JSON wire codec so the
// host side needs no generated stubs.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/distrihq/distri/tools"
	"github.com/distrihq/distri/toolruntime"
)

const codecName = "json"

// jsonCodec implements encoding.Codec over encoding/json so the host
// interface can be called without compiling .proto-generated stubs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	// Plugin hosts are dialed on a private connection that only ever
	// speaks this wire format, so registering under a custom subtype name
	// does not affect other gRPC traffic in the process.
	encoding.RegisterCodec(jsonCodec{})
}

type listToolsRequest struct {
	ArtifactID string `json:"artifact_id"`
}

type listToolsResponse struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type callToolRequest struct {
	ArtifactID string          `json:"artifact_id"`
	ToolName   string          `json:"tool_name"`
	Input      json.RawMessage `json:"input"`
}

type callToolResponse struct {
	Parts json.RawMessage `json:"parts"`
	Error string          `json:"error,omitempty"`
}

// Options configures the connection to a plugin host process.
type Options struct {
	// Target is the gRPC dial target for the sandboxed host, e.g.
	// "unix:///var/run/distri/plugin-host.sock".
	Target string
	// ArtifactID is the content address of the loaded plugin artifact.
	ArtifactID string
}

// Transport is a toolruntime.Transport backed by a plugin host reached over
// gRPC. One Transport is dialed and memoised per provider.
type Transport struct {
	conn       *grpc.ClientConn
	artifactID string
}

// New dials the plugin host at opts.Target.
func New(opts Options) (*Transport, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("plugin: target is required")
	}
	conn, err := grpc.NewClient(opts.Target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("plugin: dial %s: %w", opts.Target, err)
	}
	return &Transport{conn: conn, artifactID: opts.ArtifactID}, nil
}

// Close releases the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	req := listToolsRequest{ArtifactID: t.artifactID}
	var resp listToolsResponse
	if err := t.conn.Invoke(ctx, "/distri.plugin.Host/ListTools", &req, &resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fmt.Errorf("plugin: list tools: %w", err)
	}
	out := make([]tools.Descriptor, 0, len(resp.Tools))
	for _, e := range resp.Tools {
		out = append(out, tools.Descriptor{Name: tools.Ident(e.Name), Description: e.Description, InputSchema: e.InputSchema})
	}
	return out, nil
}

func (t *Transport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	req := callToolRequest{ArtifactID: t.artifactID, ToolName: string(call.ToolName), Input: call.Input}
	var resp callToolResponse
	if err := t.conn.Invoke(ctx, "/distri.plugin.Host/CallTool", &req, &resp, grpc.CallContentSubtype(codecName)); err != nil {
		return toolruntime.ToolResponse{}, fmt.Errorf("plugin: call tool: %w", err)
	}
	if resp.Error != "" {
		return toolruntime.ToolResponse{}, fmt.Errorf("plugin: %s", resp.Error)
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: resp.Parts}, nil
}
