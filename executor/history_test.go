package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/journal/inmem"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/prompt"
)

func newTestExecutor(t *testing.T) (*Executor, *inmem.Journal) {
	t.Helper()
	j := inmem.New()
	reg := prompt.New()
	require.NoError(t, reg.Register("default", "You are {{.AgentID}}."))
	return New(Deps{Journal: j, Prompts: reg, Events: eventbus.New(0)}), j
}

func TestMaterializeTaskStep(t *testing.T) {
	payload, _ := json.Marshal(journal.TaskPayload{Text: "do the thing"})
	steps := []journal.MemoryStep{{Kind: journal.StepTask, Payload: payload}}
	messages := materialize(steps)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	text, ok := messages[0].Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Equal(t, "do the thing", text.Text)
}

func TestMaterializeActionStepIncludesToolCalls(t *testing.T) {
	payload, _ := json.Marshal(journal.ActionPayload{
		Thought:   "checking the file",
		ToolCalls: []journal.ToolCall{{ID: "tc1", Name: "fs.read", Input: json.RawMessage(`{"path":"x"}`)}},
	})
	steps := []journal.MemoryStep{{Kind: journal.StepAction, Payload: payload}}
	messages := materialize(steps)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleAssistant, messages[0].Role)
	require.Len(t, messages[0].Parts, 2)
	call, ok := messages[0].Parts[1].(model.ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "fs.read", call.ToolName)
}

func TestMaterializeObservationStepDecodesParts(t *testing.T) {
	encoded, err := model.EncodeParts([]model.Part{model.TextPart{Text: "result body"}})
	require.NoError(t, err)
	payload, _ := json.Marshal(journal.ObservationPayload{ToolCallID: "tc1", Parts: encoded})
	steps := []journal.MemoryStep{{Kind: journal.StepObservation, Payload: payload}}

	messages := materialize(steps)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleTool, messages[0].Role)
	result, ok := messages[0].Parts[0].(model.ToolResultPart)
	require.True(t, ok)
	require.Len(t, result.Parts, 1)
	text, ok := result.Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Equal(t, "result body", text.Text)
}

func TestComposePromptIncludesSystemAndHistory(t *testing.T) {
	e, j := newTestExecutor(t)
	ctx := context.Background()
	taskPayload, _ := json.Marshal(journal.TaskPayload{Text: "hello"})
	_, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepTask, Payload: taskPayload})
	require.NoError(t, err)

	cfg := AgentConfig{
		AgentID: "agent-1", AppendDefaultInstructions: true, DefaultPromptName: "default",
		HistorySize: DefaultHistorySize, ContextSize: DefaultContextSize,
	}.normalized()

	messages, err := e.composePrompt(ctx, cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleSystem, messages[0].Role)
	sys, ok := messages[0].Parts[0].(model.TextPart)
	require.True(t, ok)
	assert.Equal(t, "You are agent-1.", sys.Text)
	assert.Equal(t, model.RoleUser, messages[1].Role)
}

func TestComposePromptTrimsWhenOverBudget(t *testing.T) {
	e, j := newTestExecutor(t)
	ctx := context.Background()
	taskPayload, _ := json.Marshal(journal.TaskPayload{Text: "start"})
	_, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepTask, Payload: taskPayload})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		p, _ := json.Marshal(journal.PlanningPayload{Text: "padding text to inflate the token estimate quite a bit here"})
		_, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepPlanning, Payload: p})
		require.NoError(t, err)
	}

	cfg := AgentConfig{
		AgentID: "agent-1", Instructions: "short", HistorySize: DefaultHistorySize, ContextSize: 20,
	}.normalized()

	messages, err := e.composePrompt(ctx, cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	// System + Task step + at most DefaultMinEntries trimmed planning steps.
	assert.LessOrEqual(t, len(messages), 2+DefaultMinEntries)
}

func TestAppendStepPublishesStepRecordedEvent(t *testing.T) {
	e, _ := newTestExecutor(t)
	sub := e.events.Subscribe("t1")
	defer sub.Close()

	_, err := e.appendStep(context.Background(), journal.MemoryStep{TaskID: "t1", Kind: journal.StepPlanning})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, eventbus.StepRecorded, ev.Type())
	default:
		t.Fatal("expected a StepRecorded event")
	}
}
