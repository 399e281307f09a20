// Package executor implements AgentExecutor: the plan-act-observe state
// machine that drives one agent invocation end to end, assembling prompts
// from the journal, calling the model, dispatching tool calls through the
// ToolRuntime, and offloading large results to the ArtifactStore.
package executor

import (
	"time"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/tools"
)

// ToolFormat selects how the executor recognizes tool calls in the model's
// response.
type ToolFormat string

const (
	// ToolFormatStructured reads tool calls from the model's dedicated
	// structured field (model.Response.ToolCalls).
	ToolFormatStructured ToolFormat = "structured"
	// ToolFormatXML scans the response text for <invoke name="...">...</invoke>
	// entries inside the first <tool_calls>...</tool_calls> block. Bare
	// <invoke> entries outside such a block are not read as tool calls.
	ToolFormatXML ToolFormat = "xml"
)

// ToolStrategy governs how a batch of concurrent tool failures affects its
// siblings.
type ToolStrategy string

const (
	// StrategyContinue lets every tool call in a batch resolve even if some
	// fail; only the failing calls produce an error Observation.
	StrategyContinue ToolStrategy = "continue"
	// StrategyFailFast cancels the remaining in-flight calls in a batch as
	// soon as one fails.
	StrategyFailFast ToolStrategy = "fail_fast"
)

const (
	// DefaultXMLRetryLimit is how many times the executor asks the model to
	// retry a response that failed XML tool-call parsing before surfacing
	// XMLParsingFailed.
	DefaultXMLRetryLimit = 2
	// DefaultMaxParallelTools bounds how many tool calls in one Action step
	// run concurrently when the agent does not override it.
	DefaultMaxParallelTools = 4
	// DefaultHistorySize caps how many journal steps are materialized into
	// the prompt when the agent does not override it.
	DefaultHistorySize = 50
	// DefaultContextSize is the token budget enforced when the agent does
	// not override it.
	DefaultContextSize = 32_000
	// DefaultMinEntries is how many of the most recent non-Task steps the
	// first trim pass keeps when a prompt is over budget; if that is still
	// too large, older ones are dropped one at a time until it fits.
	DefaultMinEntries = 3
)

// AgentConfig is everything about one agent that shapes how its invocations
// run: prompt assembly, the model it talks to, its tool bindings, and its
// loop budgets.
type AgentConfig struct {
	AgentID string

	// ModelSettings configures the underlying model.Client call (model
	// name, temperature, max tokens, streaming).
	ModelSettings model.Settings

	// Instructions is either the whole system prompt template (when
	// AppendDefaultInstructions is false) or a prefix prepended to the
	// registry's default template.
	Instructions              string
	AppendDefaultInstructions bool
	// DefaultPromptName names the PromptRegistry template used as the base
	// system prompt when AppendDefaultInstructions is true.
	DefaultPromptName string

	ToolFormat       ToolFormat
	XMLRetryLimit    int
	ToolBindings     []tools.Binding
	MaxParallelTools int
	ToolStrategy     ToolStrategy

	MaxIterations int
	HistorySize   int
	ContextSize   int

	ArtifactPolicy artifact.Policy

	// ToolTimeBudget, when non-zero, is added to the run's caps-based
	// deadline so a slow tool round doesn't by itself exhaust the task.
	ToolTimeBudget time.Duration
}

// normalized returns cfg with every zero-valued tunable replaced by its
// package default.
func (cfg AgentConfig) normalized() AgentConfig {
	if cfg.XMLRetryLimit <= 0 {
		cfg.XMLRetryLimit = DefaultXMLRetryLimit
	}
	if cfg.MaxParallelTools <= 0 {
		cfg.MaxParallelTools = DefaultMaxParallelTools
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = DefaultContextSize
	}
	if cfg.ToolStrategy == "" {
		cfg.ToolStrategy = StrategyContinue
	}
	if cfg.ArtifactPolicy == "" {
		cfg.ArtifactPolicy = artifact.PolicyThreshold
	}
	return cfg
}
