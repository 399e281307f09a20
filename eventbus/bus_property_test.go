package eventbus

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestPublishDeliversEveryEventWithinCapacity verifies that, as long as a
// subscriber drains no slower than the topic's capacity, every published
// event for its task arrives in publish order with none dropped.
func TestPublishDeliversEveryEventWithinCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("events arrive in order, none dropped, within capacity", prop.ForAll(
		func(n int) bool {
			if n > DefaultTopicCapacity {
				n = DefaultTopicCapacity
			}
			bus := New(DefaultTopicCapacity)
			sub := bus.Subscribe("task-1")
			defer sub.Close()

			for i := 0; i < n; i++ {
				bus.Publish(&TaskRunningEvent{base: newBase("task-1")})
			}
			received := 0
			for received < n {
				select {
				case ev := <-sub.Events():
					if ev.Type() != TaskRunning {
						return false
					}
					received++
				default:
					return false
				}
			}
			return true
		},
		gen.IntRange(0, DefaultTopicCapacity),
	))

	properties.TestingRun(t)
}

// TestPublishToUnknownTopicNeverPanics verifies that publishing to a task
// with no subscribers is always a safe no-op.
func TestPublishToUnknownTopicNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("publish with no subscribers never panics", prop.ForAll(
		func(taskID string) (ok bool) {
			defer func() {
				if recover() != nil {
					ok = false
				}
			}()
			bus := New(0)
			bus.Publish(&TaskRunningEvent{base: newBase(taskID)})
			return true
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
