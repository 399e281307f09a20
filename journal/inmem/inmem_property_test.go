package inmem

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/distrihq/distri/journal"
)

// TestAppendTimestampsAreMonotonicPerTask verifies that, for any sequence of
// appends to the same task, each step's Timestamp is never earlier than the
// one before it — the ordering invariant materialize and composePrompt rely
// on to replay a task's history in append order.
func TestAppendTimestampsAreMonotonicPerTask(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("appended steps have non-decreasing timestamps", prop.ForAll(
		func(texts []string) bool {
			j := New()
			ctx := context.Background()
			var prevSet bool
			var prev int64
			for _, text := range texts {
				step, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepPlanning, Payload: marshalPlanning(text)})
				if err != nil {
					return false
				}
				if prevSet && step.Timestamp.UnixNano() < prev {
					return false
				}
				prev = step.Timestamp.UnixNano()
				prevSet = true
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestLoadAlwaysPreservesTaskStepsRegardlessOfLimit verifies that Load never
// drops a StepTask entry to satisfy a limit, no matter how many
// non-task steps surround it.
func TestLoadAlwaysPreservesTaskStepsRegardlessOfLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Load never drops StepTask entries", prop.ForAll(
		func(numPlanning int, limit int) bool {
			j := New()
			ctx := context.Background()
			if _, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepTask, Payload: marshalPlanning("start")}); err != nil {
				return false
			}
			for i := 0; i < numPlanning; i++ {
				if _, err := j.Append(ctx, journal.MemoryStep{TaskID: "t1", Kind: journal.StepPlanning, Payload: marshalPlanning("pad")}); err != nil {
					return false
				}
			}
			steps, err := j.Load(ctx, "t1", "", limit)
			if err != nil {
				return false
			}
			for _, s := range steps {
				if s.Kind == journal.StepTask {
					return true
				}
			}
			return false
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func marshalPlanning(text string) []byte {
	return []byte(`{"text":"` + text + `"}`)
}
