// Package distrierr defines the typed error taxonomy shared across the
// runtime. Every failure mode the core can produce is a concrete Go type
// satisfying the error interface and supporting errors.As, so callers branch
// on Kind rather than parsing messages: a small Kind enum, a deterministic
// Error() string, and enough structured data for the event bus to classify
// a terminal failure without re-deriving it from text.
package distrierr

import "fmt"

// Kind enumerates the stable error categories the runtime can produce.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindBusy               Kind = "busy"
	KindToolExecution      Kind = "tool_execution"
	KindToolTimeout        Kind = "tool_timeout"
	KindXMLParsingFailed   Kind = "xml_parsing_failed"
	KindContextSizeExceed  Kind = "context_size_exceeded"
	KindMaxIterations      Kind = "max_iterations_reached"
	KindPlanning           Kind = "planning"
	KindSession            Kind = "session"
	KindAuth               Kind = "auth"
	KindCancelled          Kind = "cancelled"
	KindTimeout            Kind = "timeout"
	KindUnknownTool        Kind = "unknown_tool"
	KindInvalidToolInput   Kind = "invalid_tool_input"
)

// NotFound reports that an agent, task, tool, artifact, or thread could not
// be located.
type NotFound struct {
	What string // "agent", "task", "tool", "artifact", "thread"
	ID   string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s %q not found", e.What, e.ID) }
func (e *NotFound) Kind() Kind     { return KindNotFound }

// Busy reports that the coordinator queue was full when execute was called;
// no Task was created.
type Busy struct {
	Capacity int
}

func (e *Busy) Error() string { return fmt.Sprintf("coordinator queue full (capacity %d)", e.Capacity) }
func (e *Busy) Kind() Kind     { return KindBusy }

// ToolExecution wraps a transport or provider error encountered while
// invoking a tool.
type ToolExecution struct {
	Tool  string
	Cause error
}

func (e *ToolExecution) Error() string { return fmt.Sprintf("tool %q: %v", e.Tool, e.Cause) }
func (e *ToolExecution) Unwrap() error { return e.Cause }
func (e *ToolExecution) Kind() Kind     { return KindToolExecution }

// ToolTimeout reports that a tool call exceeded its per-call deadline.
type ToolTimeout struct {
	Tool       string
	DeadlineMS int64
}

func (e *ToolTimeout) Error() string {
	return fmt.Sprintf("tool %q exceeded %dms deadline", e.Tool, e.DeadlineMS)
}
func (e *ToolTimeout) Kind() Kind { return KindToolTimeout }

// XMLParsingFailed is surfaced only after the xml_retry_limit is exhausted.
type XMLParsingFailed struct {
	Raw   string
	Cause error
}

func (e *XMLParsingFailed) Error() string { return fmt.Sprintf("xml tool-call parse failed: %v", e.Cause) }
func (e *XMLParsingFailed) Unwrap() error { return e.Cause }
func (e *XMLParsingFailed) Kind() Kind     { return KindXMLParsingFailed }

// ContextSizeExceeded reports that the assembled prompt exceeds the agent's
// context_size and no trim policy could bring it back into budget.
type ContextSizeExceeded struct {
	Estimate int
	Limit    int
}

func (e *ContextSizeExceeded) Error() string {
	return fmt.Sprintf("context size exceeded: estimate %d > limit %d", e.Estimate, e.Limit)
}
func (e *ContextSizeExceeded) Kind() Kind { return KindContextSizeExceed }

// MaxIterationsReached reports that the executor issued max_iterations LLM
// calls without a final answer.
type MaxIterationsReached struct {
	Count int
}

func (e *MaxIterationsReached) Error() string {
	return fmt.Sprintf("max iterations reached after %d LLM calls", e.Count)
}
func (e *MaxIterationsReached) Kind() Kind { return KindMaxIterations }

// Planning reports a template render or validation failure while assembling
// a prompt.
type Planning struct {
	Detail string
}

func (e *Planning) Error() string { return "planning: " + e.Detail }
func (e *Planning) Kind() Kind     { return KindPlanning }

// Session reports a journal or store failure.
type Session struct {
	Detail string
	Cause  error
}

func (e *Session) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: %s: %v", e.Detail, e.Cause)
	}
	return "session: " + e.Detail
}
func (e *Session) Unwrap() error { return e.Cause }
func (e *Session) Kind() Kind     { return KindSession }

// Auth reports a missing or rejected credential.
type Auth struct {
	Detail string
}

func (e *Auth) Error() string { return "auth: " + e.Detail }
func (e *Auth) Kind() Kind     { return KindAuth }

// Cancelled reports cooperative cancellation of a task or operation.
type Cancelled struct{}

func (e *Cancelled) Error() string { return "cancelled" }
func (e *Cancelled) Kind() Kind     { return KindCancelled }

// Timeout reports that a cooperative deadline expired. It is distinct from
// Cancelled so callers can distinguish an explicit cancel from an expired
// deadline while sharing the same cooperative-termination code path.
type Timeout struct{}

func (e *Timeout) Error() string { return "timeout" }
func (e *Timeout) Kind() Kind     { return KindTimeout }

// UnknownTool reports that register_agent was given a tool binding that does
// not resolve to any provider known to the ToolRuntime.
type UnknownTool struct {
	Tool string
}

func (e *UnknownTool) Error() string { return fmt.Sprintf("unknown tool %q", e.Tool) }
func (e *UnknownTool) Kind() Kind     { return KindUnknownTool }

// InvalidToolInput reports that a tool call's Input failed validation
// against the tool's advertised InputSchema before dispatch.
type InvalidToolInput struct {
	Tool  string
	Cause error
}

func (e *InvalidToolInput) Error() string {
	return fmt.Sprintf("tool %q: input does not match schema: %v", e.Tool, e.Cause)
}
func (e *InvalidToolInput) Unwrap() error { return e.Cause }
func (e *InvalidToolInput) Kind() Kind     { return KindInvalidToolInput }

// Kinded is implemented by every error type in this package so callers can
// branch on classification without a long type switch.
type Kinded interface {
	error
	Kind() Kind
}
