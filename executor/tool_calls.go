package executor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/toolruntime"
	"github.com/distrihq/distri/tools"
)

// toolOutcome is one resolved tool call, kept in call order so Observation
// steps are appended deterministically regardless of completion order.
type toolOutcome struct {
	call         tools.Call
	resp         toolruntime.ToolResponse
	err          error
	inputPending bool
}

// dispatchToolCalls runs calls concurrently, bounded by cfg.MaxParallelTools,
// against the resolved provider for each call. Under StrategyFailFast the
// first failure cancels the remaining in-flight calls via ctx; under
// StrategyContinue every call runs to completion regardless of its
// siblings.
func (e *Executor) dispatchToolCalls(ctx context.Context, cfg AgentConfig, taskID, userID string, calls []tools.Call, providerOf map[tools.Ident]string) []toolOutcome {
	out := make([]toolOutcome, len(calls))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, cfg.MaxParallelTools)
	var wg sync.WaitGroup
	var failOnce sync.Once

	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			e.events.Publish(eventbus.NewToolCallStartEvent(taskID, call.ToolCallID, string(call.ToolName)))

			provider := providerOf[call.ToolName]
			resp, err := e.tools.Invoke(runCtx, userID, call, provider)
			out[i] = toolOutcome{call: call, resp: resp, err: err, inputPending: resp.Status == toolruntime.StatusInputRequired}

			if err != nil && cfg.ToolStrategy == StrategyFailFast {
				failOnce.Do(cancel)
			}
		}()
	}
	wg.Wait()
	return out
}

// toModelParts decodes a ToolResponse's raw Parts into model.Part values,
// tolerating an empty/absent payload.
func toModelParts(raw json.RawMessage) []model.Part {
	parts, err := model.DecodeParts(raw)
	if err != nil || len(parts) == 0 {
		if len(raw) > 0 {
			return []model.Part{model.DataPart{Value: raw}}
		}
		return nil
	}
	return parts
}

// recordObservations implements §4.3's Observing state: each tool result is
// offered to the ArtifactStore, then appended as an Observation step and
// published as a ToolCallResult event. Returns the first pending
// input-required outcome, if any.
func (e *Executor) recordObservations(ctx context.Context, cfg AgentConfig, req RunRequest, outcomes []toolOutcome) (*toolOutcome, error) {
	var pending *toolOutcome
	for i := range outcomes {
		oc := &outcomes[i]

		if oc.inputPending && pending == nil {
			pending = oc
		}

		reason := ""
		partsJSON := oc.resp.Parts
		if oc.err != nil {
			reason = oc.err.Error()
			partsJSON = nil
		} else if oc.resp.Status == toolruntime.StatusOK {
			parts := toModelParts(oc.resp.Parts)
			stored, err := e.offloadToArtifacts(ctx, cfg, req, parts)
			if err != nil {
				return nil, err
			}
			encoded, err := model.EncodeParts(stored)
			if err != nil {
				return nil, err
			}
			partsJSON = encoded
		}

		payload, err := json.Marshal(journal.ObservationPayload{
			ToolCallID: oc.call.ToolCallID,
			Parts:      partsJSON,
			Reason:     reason,
		})
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

		e.events.Publish(eventbus.NewToolCallResultEvent(req.TaskID, oc.call.ToolCallID, partsJSON, reason))
	}
	return pending, nil
}

// offloadToArtifacts applies the ArtifactStore's store-decision policy (§4.5)
// to each part, replacing large ones with an ArtifactPart reference.
func (e *Executor) offloadToArtifacts(ctx context.Context, cfg AgentConfig, req RunRequest, parts []model.Part) ([]model.Part, error) {
	out := make([]model.Part, len(parts))
	for i, p := range parts {
		stored, err := e.maybeStorePart(ctx, cfg, req, p)
		if err != nil {
			return nil, err
		}
		out[i] = stored
	}
	return out, nil
}
