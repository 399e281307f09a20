package run

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allStatuses = []string{
	string(StatusSubmitted), string(StatusRunning), string(StatusInputRequired),
	string(StatusCompleted), string(StatusFailed), string(StatusCanceled),
}

// TestTerminalStatusesNeverTransitionAnywhereElse verifies invariant 2 of
// the Task status lattice: once a task reaches a terminal status, no other
// status is reachable from it.
func TestTerminalStatusesNeverTransitionAnywhereElse(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("terminal status only transitions to itself", prop.ForAll(
		func(from, to string) bool {
			fromStatus := Status(from)
			if !fromStatus.Terminal() {
				return true
			}
			if from == to {
				return CanTransition(fromStatus, Status(to))
			}
			return !CanTransition(fromStatus, Status(to))
		},
		genStatus(), genStatus(),
	))

	properties.TestingRun(t)
}

// TestCanTransitionIsReflexive verifies every status can "transition" to
// itself, matching SetStatus's treatment of a repeated status as a no-op.
func TestCanTransitionIsReflexive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every status transitions to itself", prop.ForAll(
		func(s string) bool {
			return CanTransition(Status(s), Status(s))
		},
		genStatus(),
	))

	properties.TestingRun(t)
}

func genStatus() gopter.Gen {
	return gen.OneConstOf(
		allStatuses[0], allStatuses[1], allStatuses[2],
		allStatuses[3], allStatuses[4], allStatuses[5],
	)
}
