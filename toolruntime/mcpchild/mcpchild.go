// Package mcpchild implements toolruntime.Transport over a child process
// speaking MCP's length-prefixed JSON-RPC protocol on stdio.
package mcpchild

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/distrihq/distri/tools"
	"github.com/distrihq/distri/toolruntime"
)

// Options configures the child process and MCP handshake.
type Options struct {
	Command         string
	Args            []string
	Env             []string
	Dir             string
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
}

// DefaultProtocolVersion is the MCP protocol version used when none is given.
const DefaultProtocolVersion = "2024-11-05"

// Transport is a toolruntime.Transport backed by a long-lived child process.
// A Runtime keeps one Transport per registered provider for its own
// lifetime.
type Transport struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	pending   map[uint64]chan callResult
	pendingMu sync.Mutex
	writeMu   sync.Mutex
	nextID    uint64
	closed    chan struct{}
	closeOnce sync.Once
}

type callResult struct {
	resp rpcResponse
	err  error
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
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

// New launches the configured command and performs the MCP initialize
// handshake before returning.
func New(ctx context.Context, opts Options) (*Transport, error) {
	if opts.Command == "" {
		return nil, errors.New("mcpchild: command is required")
	}
	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	t := &Transport{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[uint64]chan callResult),
		closed:  make(chan struct{}),
	}
	go t.readLoop(stdout)
	if stderr != nil {
		go io.Copy(io.Discard, stderr)
	}
	if err := t.initialize(ctx, opts); err != nil {
		_ = t.Close()
		return nil, err
	}
	return t, nil
}

// Close terminates the child process.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.ProcessState == nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		if t.cmd != nil {
			_ = t.cmd.Wait()
		}
		close(t.closed)
	})
	return nil
}

func (t *Transport) initialize(ctx context.Context, opts Options) error {
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
	return t.call(initCtx, "initialize", payload, nil)
}

func (t *Transport) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	var result toolsListResult
	if err := t.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	out := make([]tools.Descriptor, 0, len(result.Tools))
	for _, e := range result.Tools {
		out = append(out, tools.Descriptor{
			Name:        tools.Ident(e.Name),
			Description: e.Description,
			InputSchema: e.InputSchema,
		})
	}
	return out, nil
}

func (t *Transport) Call(ctx context.Context, call tools.Call) (toolruntime.ToolResponse, error) {
	params := map[string]any{"name": string(call.ToolName), "arguments": json.RawMessage(call.Input)}
	var result toolsCallResult
	if err := t.call(ctx, "tools/call", params, &result); err != nil {
		return toolruntime.ToolResponse{}, err
	}
	parts, err := normalizeParts(result)
	if err != nil {
		return toolruntime.ToolResponse{}, err
	}
	return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, ToolName: string(call.ToolName), Parts: parts}, nil
}

func normalizeParts(result toolsCallResult) (json.RawMessage, error) {
	if len(result.Content) == 0 {
		return nil, errors.New("mcpchild: empty response")
	}
	item := result.Content[0]
	if item.Text == nil {
		return nil, errors.New("mcpchild: tool returned no text content")
	}
	textBytes := []byte(*item.Text)
	if json.Valid(textBytes) {
		return textBytes, nil
	}
	return json.Marshal(*item.Text)
}

func (t *Transport) call(ctx context.Context, method string, params any, result any) error {
	id := t.next()
	ch := make(chan callResult, 1)
	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: id, Params: params}
	if err := t.writeMessage(req); err != nil {
		t.removePending(id)
		return err
	}
	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.resp.Error != nil {
			return res.resp.Error
		}
		if result != nil && res.resp.Result != nil {
			return json.Unmarshal(res.resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		t.removePending(id)
		return ctx.Err()
	case <-t.closed:
		return errors.New("mcpchild: transport closed")
	}
}

func (t *Transport) writeMessage(req rpcRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.stdin, header); err != nil {
		return err
	}
	_, err = t.stdin.Write(data)
	return err
}

func (t *Transport) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		frame, err := readFrame(reader)
		if err != nil {
			t.failPending(err)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(frame, &resp); err != nil {
			continue
		}
		if resp.ID == 0 {
			continue
		}
		t.pendingMu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.pendingMu.Unlock()
		if ok {
			ch <- callResult{resp: resp}
			close(ch)
		}
	}
}

func (t *Transport) failPending(err error) {
	t.pendingMu.Lock()
	for id, ch := range t.pending {
		delete(t.pending, id)
		ch <- callResult{err: err}
		close(ch)
	}
	t.pendingMu.Unlock()
	_ = t.Close()
}

func (t *Transport) next() uint64 {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	t.nextID++
	return t.nextID
}

func (t *Transport) removePending(id uint64) {
	t.pendingMu.Lock()
	delete(t.pending, id)
	t.pendingMu.Unlock()
}

func readFrame(reader *bufio.Reader) ([]byte, error) {
	length := -1
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if length < 0 {
				continue
			}
			break
		}
		if after, ok := strings.CutPrefix(strings.ToLower(line), "content-length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(after))
			if err != nil {
				return nil, err
			}
			length = n
		}
	}
	if length < 0 {
		return nil, errors.New("mcpchild: content-length header missing")
	}
	buf := make([]byte, length)
	_, err := io.ReadFull(reader, buf)
	return buf, err
}
