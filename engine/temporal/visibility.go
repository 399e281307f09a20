package temporal

import (
	"context"
	"fmt"
	"time"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/encoding/protojson"
)

// TaskSummary is the Temporal-visible lifecycle snapshot for a task, pulled
// from the raw WorkflowService visibility API rather than the higher-level
// client.WorkflowRun, which only exposes a blocking Get.
type TaskSummary struct {
	WorkflowID    string
	RunID         string
	Status        string
	StartTime     time.Time
	CloseTime     time.Time
	HistoryLength int64
}

// DescribeTask reports taskID's current Temporal execution status, for
// inspecting a stuck task without waiting on its result.
func (e *Engine) DescribeTask(ctx context.Context, taskID string) (TaskSummary, error) {
	resp, err := e.client.WorkflowService().DescribeWorkflowExecution(ctx, &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace: e.namespace,
		Execution: &commonpb.WorkflowExecution{WorkflowId: taskID},
	})
	if err != nil {
		return TaskSummary{}, fmt.Errorf("temporal engine: describe workflow %q: %w", taskID, err)
	}

	if body, err := protojson.Marshal(resp); err == nil {
		e.logger.Debug(ctx, "temporal describe workflow execution", "task_id", taskID, "response", string(body))
	}

	info := resp.GetWorkflowExecutionInfo()
	summary := TaskSummary{
		WorkflowID:    info.GetExecution().GetWorkflowId(),
		RunID:         info.GetExecution().GetRunId(),
		Status:        info.GetStatus().String(),
		HistoryLength: info.GetHistoryLength(),
	}
	if st := info.GetStartTime(); st != nil {
		summary.StartTime = st.AsTime()
	}
	if ct := info.GetCloseTime(); ct != nil {
		summary.CloseTime = ct.AsTime()
	}
	return summary, nil
}
