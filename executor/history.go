package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/model"
)

// promptData is the value rendered against the agent's system prompt
// template.
type promptData struct {
	AgentID  string
	TaskID   string
	ThreadID string
}

// composePrompt implements §4.3 step 1-4: load journal history, materialize
// it into messages, render the system prompt, and validate (trimming as
// needed) against the agent's context_size.
func (e *Executor) composePrompt(ctx context.Context, cfg AgentConfig, req RunRequest) ([]model.Message, error) {
	steps, err := e.journal.Load(ctx, req.TaskID, req.ParentTaskID, cfg.HistorySize)
	if err != nil {
		return nil, &distrierr.Session{Detail: "load journal", Cause: err}
	}

	system, err := e.renderSystemPrompt(cfg, req)
	if err != nil {
		return nil, err
	}

	messages := append([]model.Message{{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: system}}}},
		materialize(steps)...)

	if _, ok := validateContextSize(messages, cfg.ContextSize); ok {
		return messages, nil
	}

	trimmed := trimSteps(steps, DefaultMinEntries)
	for {
		messages = append([]model.Message{{Role: model.RoleSystem, Parts: []model.Part{model.TextPart{Text: system}}}},
			materialize(trimmed)...)
		estimate, ok := validateContextSize(messages, cfg.ContextSize)
		if ok {
			return messages, nil
		}
		// Still over budget: drop the oldest remaining non-Task step.
		i := 0
		for i < len(trimmed) && trimmed[i].Kind == journal.StepTask {
			i++
		}
		if i == len(trimmed) {
			return nil, &distrierr.ContextSizeExceeded{Estimate: estimate, Limit: cfg.ContextSize}
		}
		trimmed = append(trimmed[:i:i], trimmed[i+1:]...)
	}
}

func (e *Executor) renderSystemPrompt(cfg AgentConfig, req RunRequest) (string, error) {
	if !cfg.AppendDefaultInstructions {
		return cfg.Instructions, nil
	}
	data := promptData{AgentID: cfg.AgentID, TaskID: req.TaskID, ThreadID: req.ThreadID}
	base, err := e.prompts.Render(cfg.DefaultPromptName, data)
	if err != nil {
		return "", &distrierr.Planning{Detail: err.Error()}
	}
	if cfg.Instructions == "" {
		return base, nil
	}
	return cfg.Instructions + "\n" + base, nil
}

// materialize converts journal steps into model messages, following the
// Task→User, Planning→Assistant, Action→Assistant(tool_calls),
// Observation→Tool mapping.
func materialize(steps []journal.MemoryStep) []model.Message {
	out := make([]model.Message, 0, len(steps))
	for _, s := range steps {
		switch s.Kind {
		case journal.StepTask:
			var p journal.TaskPayload
			_ = json.Unmarshal(s.Payload, &p)
			parts := []model.Part{model.TextPart{Text: p.Text}}
			if len(p.Data) > 0 {
				parts = append(parts, model.DataPart{Value: p.Data})
			}
			out = append(out, model.Message{Role: model.RoleUser, Parts: parts})

		case journal.StepPlanning, journal.StepFinalAnswer:
			var p journal.PlanningPayload
			_ = json.Unmarshal(s.Payload, &p)
			out = append(out, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: p.Text}}})

		case journal.StepAction:
			var p journal.ActionPayload
			_ = json.Unmarshal(s.Payload, &p)
			parts := make([]model.Part, 0, len(p.ToolCalls)+1)
			if p.Thought != "" {
				parts = append(parts, model.TextPart{Text: p.Thought})
			}
			for _, tc := range p.ToolCalls {
				parts = append(parts, model.ToolCallPart{ToolCallID: tc.ID, ToolName: tc.Name, Input: tc.Input})
			}
			out = append(out, model.Message{Role: model.RoleAssistant, Parts: parts})

		case journal.StepObservation:
			var p journal.ObservationPayload
			_ = json.Unmarshal(s.Payload, &p)
			resultParts, _ := model.DecodeParts(p.Parts)
			out = append(out, model.Message{
				Role:       model.RoleTool,
				ToolCallID: p.ToolCallID,
				Parts:      []model.Part{model.ToolResultPart{ToolCallID: p.ToolCallID, Parts: resultParts}},
			})
		}
	}
	return out
}

// appendStep is a small wrapper giving journal append failures a consistent
// distrierr shape.
func (e *Executor) appendStep(ctx context.Context, step journal.MemoryStep) (journal.MemoryStep, error) {
	saved, err := e.journal.Append(ctx, step)
	if err != nil {
		return journal.MemoryStep{}, &distrierr.Session{Detail: fmt.Sprintf("append %s step", step.Kind), Cause: err}
	}
	e.events.Publish(eventbus.NewStepRecordedEvent(saved.TaskID, string(saved.Kind)))
	return saved, nil
}
