package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/executor"
	"github.com/distrihq/distri/tools"
)

const (
	// MinListAgentsLimit and MaxListAgentsLimit bound the limit accepted by
	// list_agents; a caller-supplied value outside this range is clamped.
	MinListAgentsLimit = 1
	MaxListAgentsLimit = 250
	// DefaultListAgentsLimit is used when the caller omits limit entirely.
	DefaultListAgentsLimit = 50
)

// AgentDefinition is the registry entry for one agent: its identity, a
// human-facing description, and the AgentConfig the executor runs it with.
type AgentDefinition struct {
	Name        string
	Description string
	Config      executor.AgentConfig
}

// toolResolver is the narrow ToolRuntime capability register_agent needs to
// validate a tool binding: *toolruntime.Runtime satisfies this.
type toolResolver interface {
	ListTools(ctx context.Context, provider string, filter tools.Filter) ([]tools.Descriptor, error)
}

// agentRegistry implements the register_agent/list_agents/get_agent
// operations of §4.1: exact-name upsert, stable name-ordered pagination,
// and tool-binding validation against the ToolRuntime.
type agentRegistry struct {
	mu      sync.RWMutex
	byName  map[string]AgentDefinition
	runtime toolResolver
}

func newAgentRegistry(runtime toolResolver) *agentRegistry {
	return &agentRegistry{byName: make(map[string]AgentDefinition), runtime: runtime}
}

// register upserts def by name, rejecting it with *distrierr.UnknownTool if
// any of its tool bindings does not resolve to a provider the ToolRuntime
// knows about.
func (r *agentRegistry) register(ctx context.Context, def AgentDefinition) error {
	for _, b := range def.Config.ToolBindings {
		if _, err := r.runtime.ListTools(ctx, b.ServerName, tools.Filter{All: true}); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[def.Name] = def
	return nil
}

func (r *agentRegistry) get(name string) (AgentDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	if !ok {
		return AgentDefinition{}, &distrierr.NotFound{What: "agent", ID: name}
	}
	return def, nil
}

// list returns up to limit AgentDefinitions in lexicographic name order,
// starting just after cursor (the last name returned by a previous page).
// limit is clamped to [MinListAgentsLimit, MaxListAgentsLimit]; <= 0 means
// DefaultListAgentsLimit.
func (r *agentRegistry) list(cursor string, limit int) ([]AgentDefinition, string) {
	switch {
	case limit <= 0:
		limit = DefaultListAgentsLimit
	case limit > MaxListAgentsLimit:
		limit = MaxListAgentsLimit
	case limit < MinListAgentsLimit:
		limit = MinListAgentsLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)

	start := 0
	if cursor != "" {
		start = sort.SearchStrings(names, cursor)
		if start < len(names) && names[start] == cursor {
			start++
		}
	}
	if start >= len(names) {
		return nil, ""
	}
	end := start + limit
	if end > len(names) {
		end = len(names)
	}

	page := make([]AgentDefinition, 0, end-start)
	for _, n := range names[start:end] {
		page = append(page, r.byName[n])
	}
	nextCursor := ""
	if end < len(names) {
		nextCursor = names[end-1]
	}
	return page, nextCursor
}
