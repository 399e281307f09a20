package policy

import (
	"context"

	"github.com/distrihq/distri/tools"
)

// DefaultEngine is the Engine used when an agent declares no custom policy:
// it allows every candidate tool and decrements caps using the executor's
// ordinary bookkeeping, never disabling tools or filtering the allowlist.
type DefaultEngine struct{}

// Decide implements Engine.
func (DefaultEngine) Decide(_ context.Context, input Input) (Decision, error) {
	allowed := make([]tools.Ident, 0, len(input.Candidates))
	for _, d := range input.Candidates {
		allowed = append(allowed, d.Name)
	}
	caps := input.Remaining
	disable := caps.IterationsExhausted() || caps.ConsecutiveFailuresExhausted()
	if disable {
		allowed = nil
	}
	return Decision{AllowedTools: allowed, Caps: caps, DisableTools: disable}, nil
}
