package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/journal/inmem"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/prompt"
	"github.com/distrihq/distri/run"
	"github.com/distrihq/distri/toolruntime"
	"github.com/distrihq/distri/tools"
)

type fakeModelClient struct {
	responses []*model.Response
	calls     int
}

func (f *fakeModelClient) Complete(context.Context, []model.Message, model.Settings) (*model.Response, error) {
	resp := f.responses[f.calls]
	if f.calls < len(f.responses)-1 {
		f.calls++
	}
	return resp, nil
}

func (f *fakeModelClient) Stream(context.Context, []model.Message, model.Settings) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func textResponse(text string) *model.Response {
	return &model.Response{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}}
}

func newRunExecutor(llm model.Client, invoker ToolInvoker) *Executor {
	reg := prompt.New()
	return New(Deps{
		Journal: inmem.New(),
		Model:   llm,
		Tools:   invoker,
		Events:  eventbus.New(0),
		Prompts: reg,
	})
}

func TestRunCompletesImmediatelyWithNoToolCalls(t *testing.T) {
	llm := &fakeModelClient{responses: []*model.Response{textResponse("all done")}}
	e := newRunExecutor(llm, fakeToolInvoker{})
	cfg := AgentConfig{ToolFormat: ToolFormatStructured}.normalized()

	result, err := e.Run(context.Background(), cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, result.Status)
}

func TestRunDispatchesToolCallThenCompletes(t *testing.T) {
	toolResp := textResponse("")
	toolResp.ToolCalls = []model.ToolCallPart{{ToolCallID: "tc1", ToolName: "fs.read", Input: nil}}
	llm := &fakeModelClient{responses: []*model.Response{toolResp, textResponse("final answer")}}

	invoker := fakeToolInvoker{invoke: func(_ context.Context, _ string, call tools.Call, _ string) (toolruntime.ToolResponse, error) {
		encoded, _ := model.EncodeParts([]model.Part{model.TextPart{Text: "file contents"}})
		return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, Parts: encoded}, nil
	}}
	e := newRunExecutor(llm, invoker)
	cfg := AgentConfig{ToolFormat: ToolFormatStructured, MaxIterations: 5}.normalized()

	result, err := e.Run(context.Background(), cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, result.Status)
}

func TestRunXMLFormatRetriesOnceThenSucceeds(t *testing.T) {
	bad := textResponse("<tool_calls></tool_calls>")
	good := textResponse(`<tool_calls><invoke name="fs.read"><parameter name="path">x</parameter></invoke></tool_calls>`)
	llm := &fakeModelClient{responses: []*model.Response{bad, good, textResponse("done")}}

	invoker := fakeToolInvoker{invoke: func(_ context.Context, _ string, call tools.Call, _ string) (toolruntime.ToolResponse, error) {
		encoded, _ := model.EncodeParts([]model.Part{model.TextPart{Text: "ok"}})
		return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, Parts: encoded}, nil
	}}
	e := newRunExecutor(llm, invoker)
	cfg := AgentConfig{ToolFormat: ToolFormatXML, MaxIterations: 5}.normalized()

	result, err := e.Run(context.Background(), cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, result.Status)
}

func TestRunFailsWhenXMLRetriesExhausted(t *testing.T) {
	bad := textResponse("<tool_calls></tool_calls>")
	llm := &fakeModelClient{responses: []*model.Response{bad}}
	e := newRunExecutor(llm, fakeToolInvoker{})
	cfg := AgentConfig{ToolFormat: ToolFormatXML, XMLRetryLimit: 1}.normalized()

	result, err := e.Run(context.Background(), cfg, RunRequest{TaskID: "t1"})
	require.Error(t, err)
	assert.Equal(t, run.StatusFailed, result.Status)
	assert.Equal(t, "xml_parsing_failed", result.FailureKind)
}

func TestRunCancelledContextYieldsCanceledStatus(t *testing.T) {
	llm := &fakeModelClient{responses: []*model.Response{textResponse("unreachable")}}
	e := newRunExecutor(llm, fakeToolInvoker{})
	cfg := AgentConfig{}.normalized()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Run(ctx, cfg, RunRequest{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCanceled, result.Status)
}

func TestResumeAppendsReplyAndContinuesLoop(t *testing.T) {
	llm := &fakeModelClient{responses: []*model.Response{textResponse("thanks, done")}}
	e := newRunExecutor(llm, fakeToolInvoker{})
	cfg := AgentConfig{}.normalized()

	result, err := e.Resume(context.Background(), cfg, ResumeRequest{TaskID: "t1", ToolCallID: "tc1", Reply: "use /tmp"})
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, result.Status)

	steps, err := e.journal.Load(context.Background(), "t1", "", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(steps), 2)
	assert.Equal(t, "observation", string(steps[0].Kind))
}
