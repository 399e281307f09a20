package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/tools"
)

func TestDefaultEngineAllowsAllCandidates(t *testing.T) {
	e := DefaultEngine{}
	input := Input{
		Candidates: []tools.Descriptor{{Name: "fs.read"}, {Name: "fs.write"}},
		Remaining:  CapsState{MaxIterations: 5, RemainingIterations: 3},
	}
	decision, err := e.Decide(context.Background(), input)
	require.NoError(t, err)
	assert.False(t, decision.DisableTools)
	assert.ElementsMatch(t, []tools.Ident{"fs.read", "fs.write"}, decision.AllowedTools)
}

func TestDefaultEngineDisablesOnIterationExhaustion(t *testing.T) {
	e := DefaultEngine{}
	input := Input{
		Candidates: []tools.Descriptor{{Name: "fs.read"}},
		Remaining:  CapsState{MaxIterations: 2, RemainingIterations: 0},
	}
	decision, err := e.Decide(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, decision.DisableTools)
	assert.Empty(t, decision.AllowedTools)
}

func TestDefaultEngineDisablesOnConsecutiveFailureExhaustion(t *testing.T) {
	e := DefaultEngine{}
	input := Input{
		Candidates: []tools.Descriptor{{Name: "fs.read"}},
		Remaining:  CapsState{MaxConsecutiveFailures: 3, RemainingConsecutiveFailures: 0},
	}
	decision, err := e.Decide(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, decision.DisableTools)
}

func TestCapsStateExpired(t *testing.T) {
	c := CapsState{}
	assert.False(t, c.Expired(time.Now()))
}
