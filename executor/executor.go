package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/ids"
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/policy"
	"github.com/distrihq/distri/prompt"
	"github.com/distrihq/distri/run"
	"github.com/distrihq/distri/telemetry"
	"github.com/distrihq/distri/toolruntime"
	"github.com/distrihq/distri/tools"
)

type (
	// ToolInvoker is the narrow ToolRuntime capability the executor
	// depends on: tool discovery and dispatch. *toolruntime.Runtime
	// satisfies this.
	ToolInvoker interface {
		ListTools(ctx context.Context, provider string, filter tools.Filter) ([]tools.Descriptor, error)
		Invoke(ctx context.Context, userID string, call tools.Call, provider string) (toolruntime.ToolResponse, error)
	}

	// ArtifactWriter is the narrow ArtifactStore capability the executor
	// depends on. *artifact.Store satisfies this.
	ArtifactWriter interface {
		Write(ctx context.Context, threadID, taskID string, data []byte, contentType string) (artifact.Metadata, error)
	}
)

// RunRequest carries the identifiers needed to drive one task's plan-act-observe
// loop.
type RunRequest struct {
	TaskID       string
	ThreadID     string
	ParentTaskID string
	UserID       string
}

// ResumeRequest carries a user's reply to a suspended InputRequired task.
// The executor appends it as the pending tool call's Observation and
// continues the loop from Planning.
type ResumeRequest struct {
	TaskID       string
	ThreadID     string
	ParentTaskID string
	UserID       string
	ToolCallID   string
	Reply        string
}

// Result is what Run/Resume returns once the task reaches a terminal state
// (or suspends awaiting input).
type Result struct {
	TaskID      string
	Status      run.Status
	FailureKind string

	// Final holds the concluding assistant message when Status is
	// StatusCompleted.
	Final model.Message

	// PendingToolCallID and PendingPrompt are set when Status is
	// StatusInputRequired.
	PendingToolCallID string
	PendingPrompt     string
}

// Deps groups Executor's collaborators.
type Deps struct {
	Journal   journal.StepJournal
	Model     model.Client
	Tools     ToolInvoker
	Artifacts ArtifactWriter
	Prompts   *prompt.Registry
	Events    *eventbus.Bus
	Policy    policy.Engine

	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Executor implements AgentExecutor: it drives one task's plan-act-observe
// state machine to completion, suspension, cancellation, or failure.
type Executor struct {
	journal   journal.StepJournal
	llm       model.Client
	tools     ToolInvoker
	artifacts ArtifactWriter
	prompts   *prompt.Registry
	events    *eventbus.Bus
	policy    policy.Engine

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// New builds an Executor from its collaborators, defaulting Policy to
// policy.DefaultEngine{} and the telemetry ports to no-ops when unset.
func New(d Deps) *Executor {
	pol := d.Policy
	if pol == nil {
		pol = policy.DefaultEngine{}
	}
	logger := d.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := d.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Executor{
		journal:   d.Journal,
		llm:       d.Model,
		tools:     d.Tools,
		artifacts: d.Artifacts,
		prompts:   d.Prompts,
		events:    d.Events,
		policy:    pol,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
	}
}

// Run executes req end to end: Planning, Acting, Observing, looping until a
// terminal state or an InputRequired suspension.
func (e *Executor) Run(ctx context.Context, cfg AgentConfig, req RunRequest) (*Result, error) {
	return e.loop(ctx, cfg.normalized(), req)
}

// Resume appends replyText as the Observation for a previously suspended
// tool call, then continues the loop as if it were the next Observation.
func (e *Executor) Resume(ctx context.Context, cfg AgentConfig, req ResumeRequest) (*Result, error) {
	encoded, err := model.EncodeParts([]model.Part{model.TextPart{Text: req.Reply}})
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(journal.ObservationPayload{ToolCallID: req.ToolCallID, Parts: encoded})
	if err != nil {
		return nil, err
	}
	if _, err := e.appendStep(ctx, journal.MemoryStep{
		TaskID:       req.TaskID,
		ParentTaskID: req.ParentTaskID,
		Kind:         journal.StepObservation,
		Payload:      payload,
	}); err != nil {
		return nil, err
	}
	return e.loop(ctx, cfg.normalized(), RunRequest{
		TaskID: req.TaskID, ThreadID: req.ThreadID, ParentTaskID: req.ParentTaskID, UserID: req.UserID,
	})
}

func (e *Executor) loop(ctx context.Context, cfg AgentConfig, req RunRequest) (*Result, error) {
	providerOf, candidates, err := e.resolveTools(ctx, cfg)
	if err != nil {
		return e.failTask(ctx, req, err)
	}

	caps := policy.CapsState{MaxIterations: cfg.MaxIterations, RemainingIterations: cfg.MaxIterations}
	var retryHint *policy.RetryHint
	iterations := 0

	for {
		if err := ctx.Err(); err != nil {
			return e.cancelTask(req, err)
		}

		decision, err := e.policy.Decide(ctx, policy.Input{
			TaskID: req.TaskID, ThreadID: req.ThreadID,
			Candidates: candidates, RetryHint: retryHint, Remaining: caps,
		})
		if err != nil {
			return e.failTask(ctx, req, err)
		}
		caps = decision.Caps
		if decision.DisableTools {
			return e.failTask(ctx, req, &distrierr.MaxIterationsReached{Count: iterations})
		}

		messages, err := e.composePrompt(ctx, cfg, req)
		if err != nil {
			return e.failTask(ctx, req, err)
		}

		settings := cfg.ModelSettings
		settings.Tools = toolDefsFor(candidates, decision.AllowedTools)

		calls, planningText, err := e.planTurn(ctx, cfg, req, settings, messages)
		if err != nil {
			return e.failTask(ctx, req, err)
		}

		if len(calls) == 0 {
			return e.completeTask(ctx, req, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: planningText}}})
		}

		jCalls := make([]journal.ToolCall, len(calls))
		for i, c := range calls {
			jCalls[i] = journal.ToolCall{ID: c.ToolCallID, Name: string(c.ToolName), Input: c.Input}
		}
		actionPayload, err := json.Marshal(journal.ActionPayload{Thought: planningText, ToolCalls: jCalls})
		if err != nil {
			return nil, err
		}
		if _, err := e.appendStep(ctx, journal.MemoryStep{
			TaskID: req.TaskID, ParentTaskID: req.ParentTaskID, Kind: journal.StepAction, Payload: actionPayload,
		}); err != nil {
			return e.failTask(ctx, req, err)
		}

		outcomes := e.dispatchToolCalls(ctx, cfg, req.TaskID, req.UserID, calls, providerOf)

		if err := ctx.Err(); err != nil {
			return e.cancelTask(req, err)
		}

		pending, err := e.recordObservations(ctx, cfg, req, outcomes)
		if err != nil {
			return e.failTask(ctx, req, err)
		}
		if pending != nil {
			return e.suspendTask(req, pending)
		}

		retryHint = retryHintFrom(outcomes)
		caps = advanceCaps(caps, outcomes)
		iterations++
		if caps.IterationsExhausted() || (cfg.MaxIterations > 0 && iterations >= cfg.MaxIterations) {
			return e.failTask(ctx, req, &distrierr.MaxIterationsReached{Count: iterations})
		}
	}
}

// planTurn calls the model and extracts tool calls, retrying XML parse
// failures up to cfg.XMLRetryLimit per §4.3.
func (e *Executor) planTurn(ctx context.Context, cfg AgentConfig, req RunRequest, settings model.Settings, messages []model.Message) ([]tools.Call, string, error) {
	attempts := 0
	cur := messages
	for {
		resp, err := e.callModel(ctx, req, settings, cur)
		if err != nil {
			return nil, "", err
		}
		text := concatText(resp.Message)

		if cfg.ToolFormat == ToolFormatStructured {
			return convertToolCallParts(resp.ToolCalls), text, nil
		}

		parsed, perr := parseXMLToolCalls(text)
		if perr == nil {
			return convertParsedCalls(parsed), toolCallsBlock.ReplaceAllString(text, ""), nil
		}

		attempts++
		if attempts > cfg.XMLRetryLimit {
			return nil, "", &distrierr.XMLParsingFailed{Raw: text, Cause: perr}
		}
		cur = append(append([]model.Message{}, cur...),
			model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}},
			model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: xmlRetryReminder}}},
		)
	}
}

// callModel invokes the model non-streaming or streaming per settings.Stream,
// forwarding TextMessage*/ToolCallStart events to the bus as a streamed
// response arrives and accumulating it into a single Response either way.
func (e *Executor) callModel(ctx context.Context, req RunRequest, settings model.Settings, messages []model.Message) (*model.Response, error) {
	if !settings.Stream {
		return e.llm.Complete(ctx, messages, settings)
	}

	streamer, err := e.llm.Stream(ctx, messages, settings)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	msgID := ids.New()
	e.events.Publish(eventbus.NewTextMessageStartEvent(req.TaskID, msgID, string(model.RoleAssistant)))

	var text strings.Builder
	var toolCalls []model.ToolCallPart
	var usage model.TokenUsage
	stopReason := ""
	for {
		chunk, err := streamer.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			text.WriteString(chunk.TextDelta)
			e.events.Publish(eventbus.NewTextMessageContentEvent(req.TaskID, msgID, chunk.TextDelta))
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
				e.events.Publish(eventbus.NewToolCallStartEvent(req.TaskID, chunk.ToolCall.ToolCallID, chunk.ToolCall.ToolName))
			}
		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				usage = addUsage(usage, *chunk.UsageDelta)
			}
		case model.ChunkTypeStop:
			stopReason = chunk.StopReason
		}
	}
	e.events.Publish(eventbus.NewTextMessageEndEvent(req.TaskID, msgID))

	return &model.Response{
		Message:    model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text.String()}}},
		ToolCalls:  toolCalls,
		Usage:      usage,
		StopReason: stopReason,
	}, nil
}

func (e *Executor) resolveTools(ctx context.Context, cfg AgentConfig) (map[tools.Ident]string, []tools.Descriptor, error) {
	providerOf := make(map[tools.Ident]string)
	var all []tools.Descriptor
	for _, b := range cfg.ToolBindings {
		descs, err := e.tools.ListTools(ctx, b.ServerName, b.Filter)
		if err != nil {
			return nil, nil, err
		}
		for _, d := range descs {
			if override, ok := b.Filter.DescriptionFor(string(d.Name)); ok {
				d.Description = override
			}
			providerOf[d.Name] = b.ServerName
			all = append(all, d)
		}
	}
	return providerOf, all, nil
}

func (e *Executor) completeTask(ctx context.Context, req RunRequest, final model.Message) (*Result, error) {
	if payload, err := json.Marshal(journal.PlanningPayload{Text: concatText(final)}); err == nil {
		_, _ = e.appendStep(ctx, journal.MemoryStep{
			TaskID: req.TaskID, ParentTaskID: req.ParentTaskID, Kind: journal.StepFinalAnswer, Payload: payload,
		})
	}
	e.events.Publish(eventbus.NewTaskCompletedEvent(req.TaskID))
	return &Result{TaskID: req.TaskID, Status: run.StatusCompleted, Final: final}, nil
}

func (e *Executor) failTask(ctx context.Context, req RunRequest, cause error) (*Result, error) {
	kind := ""
	var kinded distrierr.Kinded
	if errors.As(cause, &kinded) {
		kind = string(kinded.Kind())
	}
	e.events.Publish(eventbus.NewTaskFailedEvent(req.TaskID, kind))
	return &Result{TaskID: req.TaskID, Status: run.StatusFailed, FailureKind: kind}, cause
}

func (e *Executor) cancelTask(req RunRequest, cause error) (*Result, error) {
	payload, _ := json.Marshal(journal.ObservationPayload{Reason: "cancelled: " + cause.Error()})
	// Use a background context: the task's own ctx is already done, but the
	// cancellation record must still be durably appended.
	_, _ = e.journal.Append(context.Background(), journal.MemoryStep{
		TaskID: req.TaskID, ParentTaskID: req.ParentTaskID, Kind: journal.StepObservation, Payload: payload,
	})
	e.events.Publish(eventbus.NewTaskCancelledEvent(req.TaskID))
	return &Result{TaskID: req.TaskID, Status: run.StatusCanceled}, nil
}

func (e *Executor) suspendTask(req RunRequest, pending *toolOutcome) (*Result, error) {
	e.events.Publish(eventbus.NewInputRequiredEvent(req.TaskID, pending.resp.Prompt))
	return &Result{
		TaskID: req.TaskID, Status: run.StatusInputRequired,
		PendingToolCallID: pending.call.ToolCallID, PendingPrompt: pending.resp.Prompt,
	}, nil
}

func toolDefsFor(candidates []tools.Descriptor, allowed []tools.Ident) []model.ToolDefinition {
	allowSet := make(map[tools.Ident]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}
	var defs []model.ToolDefinition
	for _, d := range candidates {
		if !allowSet[d.Name] {
			continue
		}
		var schema any
		if len(d.InputSchema) > 0 {
			_ = json.Unmarshal(d.InputSchema, &schema)
		}
		defs = append(defs, model.ToolDefinition{Name: string(d.Name), Description: d.Description, InputSchema: schema})
	}
	return defs
}

func convertToolCallParts(parts []model.ToolCallPart) []tools.Call {
	calls := make([]tools.Call, len(parts))
	for i, p := range parts {
		calls[i] = tools.Call{ToolCallID: p.ToolCallID, ToolName: tools.Ident(p.ToolName), Input: p.Input}
	}
	return calls
}

func convertParsedCalls(parsed []parsedToolCall) []tools.Call {
	calls := make([]tools.Call, len(parsed))
	for i, p := range parsed {
		calls[i] = tools.Call{ToolCallID: ids.New(), ToolName: tools.Ident(p.Name), Input: p.Input}
	}
	return calls
}

func concatText(msg model.Message) string {
	var b strings.Builder
	for _, p := range msg.Parts {
		if t, ok := p.(model.TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func addUsage(a, b model.TokenUsage) model.TokenUsage {
	return model.TokenUsage{
		InputTokens:      a.InputTokens + b.InputTokens,
		OutputTokens:     a.OutputTokens + b.OutputTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
		CacheReadTokens:  a.CacheReadTokens + b.CacheReadTokens,
		CacheWriteTokens: a.CacheWriteTokens + b.CacheWriteTokens,
	}
}

func advanceCaps(caps policy.CapsState, outcomes []toolOutcome) policy.CapsState {
	if caps.MaxIterations > 0 {
		caps.RemainingIterations--
	}
	failed := false
	for _, oc := range outcomes {
		if oc.err != nil {
			failed = true
			break
		}
	}
	if caps.MaxConsecutiveFailures > 0 {
		if failed {
			caps.RemainingConsecutiveFailures--
		} else {
			caps.RemainingConsecutiveFailures = caps.MaxConsecutiveFailures
		}
	}
	return caps
}

func retryHintFrom(outcomes []toolOutcome) *policy.RetryHint {
	for _, oc := range outcomes {
		if oc.err == nil {
			continue
		}
		reason := policy.RetryReasonTransportFailure
		var timeout *distrierr.ToolTimeout
		var unknown *distrierr.UnknownTool
		switch {
		case errors.As(oc.err, &timeout):
			reason = policy.RetryReasonTimeout
		case errors.As(oc.err, &unknown):
			reason = policy.RetryReasonToolUnavailable
		}
		return &policy.RetryHint{Reason: reason, Tool: oc.call.ToolName, Message: oc.err.Error()}
	}
	return nil
}
