package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/engine"
)

func TestWorkflowExecutesActivityAndReturnsResult(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.RegisterActivity(ctx, engine.ActivityDefinition{
		Name: "double",
		Handler: func(_ context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	}))

	require.NoError(t, e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "doubler",
		Handler: func(wctx engine.WorkflowContext, input any) (any, error) {
			var out int
			err := wctx.ExecuteActivity(wctx.Context(), engine.ActivityRequest{Name: "double", Input: input}, &out)
			return out, err
		},
	}))

	h, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "t1", Workflow: "doubler", Input: 21})
	require.NoError(t, err)

	var result int
	require.NoError(t, h.Wait(ctx, &result))
	assert.Equal(t, 42, result)
}

func TestWorkflowSignalDelivery(t *testing.T) {
	e := New()
	ctx := context.Background()

	require.NoError(t, e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "awaiter",
		Handler: func(wctx engine.WorkflowContext, _ any) (any, error) {
			var reply string
			if err := wctx.SignalChannel("resume").Receive(wctx.Context(), &reply); err != nil {
				return nil, err
			}
			return reply, nil
		},
	}))

	h, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "t1", Workflow: "awaiter"})
	require.NoError(t, err)

	require.NoError(t, h.Signal(ctx, "resume", "hello"))

	var result string
	require.NoError(t, h.Wait(ctx, &result))
	assert.Equal(t, "hello", result)
}

func TestStartWorkflowUnknownWorkflowErrors(t *testing.T) {
	e := New()
	_, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "t1", Workflow: "ghost"})
	assert.Error(t, err)
}

func TestDuplicateWorkflowRegistrationErrors(t *testing.T) {
	e := New()
	ctx := context.Background()
	def := engine.WorkflowDefinition{Name: "dup", Handler: func(engine.WorkflowContext, any) (any, error) { return nil, nil }}
	require.NoError(t, e.RegisterWorkflow(ctx, def))
	assert.Error(t, e.RegisterWorkflow(ctx, def))
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.RegisterWorkflow(ctx, engine.WorkflowDefinition{
		Name: "slow",
		Handler: func(wctx engine.WorkflowContext, _ any) (any, error) {
			<-wctx.Context().Done()
			return nil, wctx.Context().Err()
		},
	}))
	h, err := e.StartWorkflow(ctx, engine.WorkflowStartRequest{ID: "t1", Workflow: "slow"})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = h.Wait(waitCtx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
