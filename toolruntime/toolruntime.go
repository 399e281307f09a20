// Package toolruntime implements ToolRuntime: resolution of a tool call's
// provider transport, credential injection, deadline enforcement, and
// idempotency-aware retry.
package toolruntime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/distrihq/distri/auth"
	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/tools"
)

const (
	// DefaultListDeadline bounds a list_tools call.
	DefaultListDeadline = 10 * time.Second
	// DefaultCallDeadline bounds an invoke call.
	DefaultCallDeadline = 60 * time.Second
	// DefaultRetryLimit is the number of retries attempted on a transport
	// error for an idempotent tool.
	DefaultRetryLimit = 0
)

// Status classifies a ToolResponse beyond plain success.
type Status string

const (
	// StatusOK is the zero value: the call completed and Parts holds its
	// result.
	StatusOK Status = ""
	// StatusInputRequired means the tool needs a reply from the task's
	// user before it can complete; the executor suspends the task instead
	// of treating Parts as a final result.
	StatusInputRequired Status = "input_required"
)

// ToolResponse is the structured result of a tool invocation.
type ToolResponse struct {
	ToolCallID string
	ToolName   string
	Parts      json.RawMessage

	// Status is StatusOK unless the tool is requesting suspension.
	Status Status
	// Prompt is the text shown to the user when Status is
	// StatusInputRequired.
	Prompt string
}

// Transport dispatches a single tool call to a specific provider. One
// Transport implementation exists per provider kind (builtin, MCP-local,
// MCP-child, MCP-remote, plugin); ToolRuntime resolves and memoises the
// right one per provider name.
type Transport interface {
	// ListTools returns the tools a provider exposes.
	ListTools(ctx context.Context) ([]tools.Descriptor, error)

	// Call dispatches a single tool invocation and returns its raw result.
	Call(ctx context.Context, call tools.Call) (ToolResponse, error)
}

// ProviderConfig names a provider's auth binding and per-tool deadline
// overrides.
type ProviderConfig struct {
	Name           string
	AuthSessionKey string
	RetryLimit     int
	CallDeadline   time.Duration
	ListDeadline   time.Duration
}

// Runtime implements the invoke/list_tools operations described for
// ToolRuntime: transport resolution is memoised per provider for the life
// of the Runtime, tool descriptor lists are cached per provider, and
// retries only apply to tools the provider advertises as idempotent.
type Runtime struct {
	mu          sync.Mutex
	transports  map[string]Transport
	configs     map[string]ProviderConfig
	descriptors map[string][]tools.Descriptor
	authStore   auth.Store
}

// New builds an empty Runtime. Providers are registered via Register before
// their tools can be listed or invoked.
func New(authStore auth.Store) *Runtime {
	return &Runtime{
		transports:  make(map[string]Transport),
		configs:     make(map[string]ProviderConfig),
		descriptors: make(map[string][]tools.Descriptor),
		authStore:   authStore,
	}
}

// Register binds a provider name to its Transport and configuration.
func (r *Runtime) Register(cfg ProviderConfig, transport Transport) {
	if cfg.RetryLimit == 0 {
		cfg.RetryLimit = DefaultRetryLimit
	}
	if cfg.CallDeadline <= 0 {
		cfg.CallDeadline = DefaultCallDeadline
	}
	if cfg.ListDeadline <= 0 {
		cfg.ListDeadline = DefaultListDeadline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[cfg.Name] = transport
	r.configs[cfg.Name] = cfg
}

// ListTools returns provider's tools, filtered by filter, caching the
// unfiltered descriptor list on first call.
func (r *Runtime) ListTools(ctx context.Context, provider string, filter tools.Filter) ([]tools.Descriptor, error) {
	transport, cfg, err := r.resolve(provider)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	cached, ok := r.descriptors[provider]
	r.mu.Unlock()
	if !ok {
		lctx, cancel := context.WithTimeout(ctx, cfg.ListDeadline)
		defer cancel()
		list, err := transport.ListTools(lctx)
		if err != nil {
			if errors.Is(lctx.Err(), context.DeadlineExceeded) {
				return nil, &distrierr.ToolTimeout{Tool: provider, DeadlineMS: cfg.ListDeadline.Milliseconds()}
			}
			return nil, &distrierr.ToolExecution{Tool: provider, Cause: err}
		}
		r.mu.Lock()
		r.descriptors[provider] = list
		r.mu.Unlock()
		cached = list
	}

	out := make([]tools.Descriptor, 0, len(cached))
	for _, d := range cached {
		if filter.Matches(string(d.Name)) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Invoke dispatches a single tool call: it injects a credential if the
// provider declares an auth_session_key, sends the call under a per-call
// deadline, and retries transport failures up to the provider's retry limit
// when the tool is idempotent.
func (r *Runtime) Invoke(ctx context.Context, userID string, call tools.Call, provider string) (ToolResponse, error) {
	transport, cfg, err := r.resolve(provider)
	if err != nil {
		return ToolResponse{}, err
	}

	if desc, ok := r.descriptorFor(provider, call.ToolName); ok {
		if err := validateInput(call, desc.InputSchema); err != nil {
			return ToolResponse{}, err
		}
	}

	call, err = r.injectAuth(ctx, userID, cfg, call)
	if err != nil {
		return ToolResponse{}, err
	}

	idempotent := r.isIdempotent(provider, call.ToolName)
	retries := 0
	if idempotent {
		retries = cfg.RetryLimit
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ToolResponse{}, ctx.Err()
			}
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.CallDeadline)
		resp, err := transport.Call(cctx, call)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return ToolResponse{}, &distrierr.ToolTimeout{Tool: string(call.ToolName), DeadlineMS: cfg.CallDeadline.Milliseconds()}
		}
	}
	return ToolResponse{}, &distrierr.ToolExecution{Tool: string(call.ToolName), Cause: lastErr}
}

func (r *Runtime) resolve(provider string) (Transport, ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	transport, ok := r.transports[provider]
	if !ok {
		return nil, ProviderConfig{}, &distrierr.UnknownTool{Tool: provider}
	}
	return transport, r.configs[provider], nil
}

func (r *Runtime) isIdempotent(provider string, name tools.Ident) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.descriptors[provider] {
		if d.Name == name {
			return d.Idempotent
		}
	}
	return false
}

func (r *Runtime) injectAuth(ctx context.Context, userID string, cfg ProviderConfig, call tools.Call) (tools.Call, error) {
	if cfg.AuthSessionKey == "" {
		return call, nil
	}
	cred, err := r.authStore.Get(ctx, userID, cfg.Name)
	if err != nil {
		return tools.Call{}, &distrierr.Auth{Detail: "no credential for provider " + cfg.Name}
	}
	var input map[string]json.RawMessage
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &input); err != nil {
			return tools.Call{}, &distrierr.ToolExecution{Tool: string(call.ToolName), Cause: err}
		}
	} else {
		input = make(map[string]json.RawMessage)
	}
	tokenJSON, err := json.Marshal(cred.Token)
	if err != nil {
		return tools.Call{}, err
	}
	input[cfg.AuthSessionKey] = tokenJSON
	merged, err := json.Marshal(input)
	if err != nil {
		return tools.Call{}, err
	}
	call.Input = merged
	return call, nil
}
