package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/journal/inmem"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/toolruntime"
	"github.com/distrihq/distri/tools"
)

type fakeToolInvoker struct {
	invoke func(ctx context.Context, userID string, call tools.Call, provider string) (toolruntime.ToolResponse, error)
}

func (f fakeToolInvoker) ListTools(context.Context, string, tools.Filter) ([]tools.Descriptor, error) {
	return nil, nil
}

func (f fakeToolInvoker) Invoke(ctx context.Context, userID string, call tools.Call, provider string) (toolruntime.ToolResponse, error) {
	return f.invoke(ctx, userID, call, provider)
}

type fakeArtifactWriter struct {
	writes int32
}

func (f *fakeArtifactWriter) Write(_ context.Context, _, _ string, data []byte, contentType string) (artifact.Metadata, error) {
	atomic.AddInt32(&f.writes, 1)
	return artifact.Metadata{FileID: "f1", RelativePath: "x/content/f1.bin", Size: int64(len(data)), ContentType: contentType}, nil
}

func textResult(t *testing.T, s string) json.RawMessage {
	t.Helper()
	encoded, err := model.EncodeParts([]model.Part{model.TextPart{Text: s}})
	require.NoError(t, err)
	return encoded
}

func TestDispatchToolCallsContinueStrategyRunsAllDespiteFailure(t *testing.T) {
	invoker := fakeToolInvoker{invoke: func(_ context.Context, _ string, call tools.Call, _ string) (toolruntime.ToolResponse, error) {
		if call.ToolName == "bad" {
			return toolruntime.ToolResponse{}, fmt.Errorf("boom")
		}
		return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, Parts: textResult(t, "ok")}, nil
	}}
	e := New(Deps{Tools: invoker, Events: eventbus.New(0)})
	cfg := AgentConfig{ToolStrategy: StrategyContinue, MaxParallelTools: 2}.normalized()

	calls := []tools.Call{{ToolCallID: "1", ToolName: "good"}, {ToolCallID: "2", ToolName: "bad"}, {ToolCallID: "3", ToolName: "good"}}
	outcomes := e.dispatchToolCalls(context.Background(), cfg, "task-1", "user-1", calls, nil)

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].err)
	assert.Error(t, outcomes[1].err)
	assert.NoError(t, outcomes[2].err)
}

func TestDispatchToolCallsFailFastCancelsSiblings(t *testing.T) {
	var started int32
	invoker := fakeToolInvoker{invoke: func(ctx context.Context, _ string, call tools.Call, _ string) (toolruntime.ToolResponse, error) {
		atomic.AddInt32(&started, 1)
		if call.ToolName == "bad" {
			return toolruntime.ToolResponse{}, fmt.Errorf("boom")
		}
		select {
		case <-time.After(200 * time.Millisecond):
			return toolruntime.ToolResponse{ToolCallID: call.ToolCallID, Parts: textResult(t, "ok")}, nil
		case <-ctx.Done():
			return toolruntime.ToolResponse{}, ctx.Err()
		}
	}}
	e := New(Deps{Tools: invoker, Events: eventbus.New(0)})
	cfg := AgentConfig{ToolStrategy: StrategyFailFast, MaxParallelTools: 4}.normalized()

	calls := []tools.Call{{ToolCallID: "1", ToolName: "bad"}, {ToolCallID: "2", ToolName: "slow"}}
	outcomes := e.dispatchToolCalls(context.Background(), cfg, "task-1", "user-1", calls, nil)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].err)
	assert.Error(t, outcomes[1].err)
}

func TestRecordObservationsReturnsPendingOnInputRequired(t *testing.T) {
	j := inmem.New()
	e := New(Deps{Journal: j, Events: eventbus.New(0), Artifacts: &fakeArtifactWriter{}})
	cfg := AgentConfig{}.normalized()

	outcomes := []toolOutcome{
		{call: tools.Call{ToolCallID: "1", ToolName: "ask"}, resp: toolruntime.ToolResponse{ToolCallID: "1", Status: toolruntime.StatusInputRequired, Prompt: "which file?"}, inputPending: true},
	}
	pending, err := e.recordObservations(context.Background(), cfg, RunRequest{TaskID: "t1"}, outcomes)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "which file?", pending.resp.Prompt)
}

func TestRecordObservationsOffloadsLargePartsToArtifacts(t *testing.T) {
	j := inmem.New()
	writer := &fakeArtifactWriter{}
	e := New(Deps{Journal: j, Events: eventbus.New(0), Artifacts: writer})
	cfg := AgentConfig{ArtifactPolicy: artifact.PolicyAlways}.normalized()

	outcomes := []toolOutcome{
		{call: tools.Call{ToolCallID: "1", ToolName: "fs.read"}, resp: toolruntime.ToolResponse{ToolCallID: "1", Parts: textResult(t, "small but always stored")}},
	}
	pending, err := e.recordObservations(context.Background(), cfg, RunRequest{TaskID: "t1", ThreadID: "th1"}, outcomes)
	require.NoError(t, err)
	assert.Nil(t, pending)
	assert.Equal(t, int32(1), writer.writes)
}

func TestRecordObservationsRecordsToolErrorAsReason(t *testing.T) {
	j := inmem.New()
	e := New(Deps{Journal: j, Events: eventbus.New(0), Artifacts: &fakeArtifactWriter{}})
	cfg := AgentConfig{}.normalized()

	outcomes := []toolOutcome{
		{call: tools.Call{ToolCallID: "1", ToolName: "fs.read"}, err: fmt.Errorf("disk on fire")},
	}
	_, err := e.recordObservations(context.Background(), cfg, RunRequest{TaskID: "t1"}, outcomes)
	require.NoError(t, err)

	steps, err := j.Load(context.Background(), "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Contains(t, string(steps[0].Payload), "disk on fire")
}
