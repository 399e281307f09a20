package artifact

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestShouldStorePolicyAlwaysStoresEverything verifies that PolicyAlways
// stores every candidate part other than an already-stored artifact
// reference, regardless of its size.
func TestShouldStorePolicyAlwaysStoresEverything(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("PolicyAlways stores every non-artifact kind regardless of size", prop.ForAll(
		func(kind string, size int) bool {
			if kind == string(PartArtifact) {
				return true // an already-stored artifact is never re-stored
			}
			return ShouldStore(PartKind(kind), size, PolicyAlways)
		},
		genPartKind(),
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

// TestShouldStoreArtifactPartsNeverStoreUnderThreshold verifies that an
// already-materialized artifact reference is never wrapped again under
// PolicyThreshold, for any size.
func TestShouldStoreArtifactPartsNeverStoreUnderThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("PartArtifact is never stored under PolicyThreshold", prop.ForAll(
		func(size int) bool {
			return !ShouldStore(PartArtifact, size, PolicyThreshold)
		},
		gen.IntRange(0, 1<<20),
	))

	properties.TestingRun(t)
}

// TestShouldStoreThresholdMatchesDocumentedCutoffs verifies the exact
// boundary behaviour documented for PolicyThreshold: text is wrapped only
// past DefaultTextThreshold and every other kind only past
// DefaultBinaryThreshold.
func TestShouldStoreThresholdMatchesDocumentedCutoffs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold cutoff matches kind-specific default", prop.ForAll(
		func(size int) bool {
			textWant := size > DefaultTextThreshold
			if ShouldStore(PartText, size, PolicyThreshold) != textWant {
				return false
			}
			dataWant := size > DefaultBinaryThreshold
			return ShouldStore(PartData, size, PolicyThreshold) == dataWant
		},
		gen.IntRange(0, DefaultBinaryThreshold*4),
	))

	properties.TestingRun(t)
}

func genPartKind() gopter.Gen {
	return gen.OneConstOf(
		string(PartText), string(PartData), string(PartImage),
		string(PartToolCall), string(PartToolResult), string(PartArtifact),
	)
}
