// Package mcpremote implements toolruntime.Transport over an HTTP endpoint
// speaking MCP's JSON-RPC, with bearer-token or signed-JWT auth injected per
// request. Each call is one POST whose response body is read as a single
// JSON-RPC object; SSE (text/event-stream) responses are not supported.
package mcpremote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/distrihq/distri/tools"
	"github.com/distrihq/distri/toolruntime"
)

// DefaultProtocolVersion is the MCP protocol version used when none is given.
const DefaultProtocolVersion = "2024-11-05"

// TokenSource returns the current bearer token (or signed JWT) to attach to
// every request. Called once per call so short-lived tokens can be rotated
// transparently.
type TokenSource func(ctx context.Context) (string, error)

// Options configures the remote endpoint and auth.
type Options struct {
	Endpoint        string
	Client          *http.Client
	Token           TokenSource
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
}

// Transport is a toolruntime.Transport over HTTP JSON-RPC.
type Transport struct {
	endpoint string
	client   *http.Client
	token    TokenSource
	id       uint64
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp remote error %d: %s", e.Code, e.Message)
}

type toolsListResult struct {
	Tools []toolEntry `json:"tools"`
}

type toolEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

type contentItem struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// New builds a remote MCP transport and performs the initialize handshake.
func New(ctx context.Context, opts Options) (*Transport, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("mcpremote: endpoint is required")
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	t := &Transport{endpoint: opts.Endpoint, client: httpClient, token: opts.Token}

	protocol := opts.ProtocolVersion
	if protocol == "" {
		protocol = DefaultProtocolVersion
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = "distri"
	}
	clientVersion := opts.ClientVersion
	if clientVersion == "" {
		clientVersion = "dev"
	}
	payload := map[string]any{
		"protocolVersion": protocol,
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
	}
	initCtx := ctx
	if opts.InitTimeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, opts.InitTimeout)
		defer cancel()
	}
	if err := t.call(initCtx, "initialize", payload, nil); err != nil {
		return nil, fmt.Errorf("mcpremote: initialize: %w", err)
	}
	return t, nil
}

func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	var result toolsListResult
	if err := t.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	out := make([]tools.Descriptor, 0, len(result.Tools))
	for _, e := range result.Tools {
		out = append(out, tools.Descriptor{Name: tools.Ident(e.Name), Description: e.Description, InputSchema: e.InputSchema})
	}
	return out, nil
}

func (t *Transport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	params := map[string]any{"name": string(call.ToolName), "arguments": json.RawMessage(call.Input)}
	var result toolsCallResult
	if err := t.call(ctx, "tools/call", params, &result); err != nil {
		return toolruntime.ToolResponse{}, err
	}
	if len(result.Content) == 0 || result.Content[0].Text == nil {
		return toolruntime.ToolResponse{}, errors.New("mcpremote: empty response")
	}
	textBytes := []byte(*result.Content[0].Text)
	if !json.Valid(textBytes) {
		var err error
		textBytes, err = json.Marshal(*result.Content[0].Text)
		if err != nil {
			return toolruntime.ToolResponse{}, err
		}
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: textBytes}, nil
}

func (t *Transport) nextID() uint64 { return atomic.AddUint64(&t.id, 1) }

func (t *Transport) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, ID: t.nextID(), Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != nil {
		tok, err := t.token(ctx)
		if err != nil {
			return fmt.Errorf("mcpremote: token source: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mcpremote: status %d", resp.StatusCode)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}
	return nil
}
