package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/model"
)

func TestPartKindAndBytesText(t *testing.T) {
	kind, data, ct, err := partKindAndBytes(model.TextPart{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, artifact.PartText, kind)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "text/plain", ct)
}

func TestPartKindAndBytesArtifactPassesThrough(t *testing.T) {
	kind, _, _, err := partKindAndBytes(model.ArtifactPart{FileID: "f1"})
	require.NoError(t, err)
	assert.Equal(t, artifact.PartArtifact, kind)
}

func TestMaybeStorePartUnderThresholdStaysInline(t *testing.T) {
	e := New(Deps{Artifacts: &fakeArtifactWriter{}})
	cfg := AgentConfig{}.normalized()

	part, err := e.maybeStorePart(context.Background(), cfg, RunRequest{}, model.TextPart{Text: "short"})
	require.NoError(t, err)
	_, ok := part.(model.TextPart)
	assert.True(t, ok)
}

func TestMaybeStorePartOverThresholdBecomesArtifact(t *testing.T) {
	writer := &fakeArtifactWriter{}
	e := New(Deps{Artifacts: writer})
	cfg := AgentConfig{}.normalized()

	big := strings.Repeat("x", artifact.DefaultTextThreshold+1)
	part, err := e.maybeStorePart(context.Background(), cfg, RunRequest{ThreadID: "th1", TaskID: "t1"}, model.TextPart{Text: big})
	require.NoError(t, err)
	ap, ok := part.(model.ArtifactPart)
	require.True(t, ok)
	assert.Equal(t, "f1", ap.FileID)
	assert.EqualValues(t, 1, writer.writes)
}

func TestMaybeStorePartAlwaysPolicyStoresEvenSmallParts(t *testing.T) {
	writer := &fakeArtifactWriter{}
	e := New(Deps{Artifacts: writer})
	cfg := AgentConfig{ArtifactPolicy: artifact.PolicyAlways}.normalized()

	part, err := e.maybeStorePart(context.Background(), cfg, RunRequest{}, model.TextPart{Text: "tiny"})
	require.NoError(t, err)
	_, ok := part.(model.ArtifactPart)
	assert.True(t, ok)
}
