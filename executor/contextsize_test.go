package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/model"
)

func TestEstimateTokensText(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "12345678"}}},
	}
	assert.Equal(t, 2, estimateTokens(messages))
}

func TestEstimateTokensImageFlatCost(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleUser, Parts: []model.Part{model.ImagePart{Bytes: []byte("ignored")}}},
	}
	assert.Equal(t, imageTokenCost, estimateTokens(messages))
}

func TestEstimateTokensToolResultRecurses(t *testing.T) {
	inner := model.TextPart{Text: "abcdefgh"}
	messages := []model.Message{
		{Role: model.RoleTool, Parts: []model.Part{model.ToolResultPart{ToolCallID: "t1", Parts: []model.Part{inner}}}},
	}
	assert.Equal(t, 2, estimateTokens(messages))
}

func TestValidateContextSizeWithinLimit(t *testing.T) {
	messages := []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "short"}}}}
	estimate, ok := validateContextSize(messages, 100)
	assert.True(t, ok)
	assert.Greater(t, estimate, 0)
}

func TestValidateContextSizeOverLimit(t *testing.T) {
	messages := []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "this text is long enough to exceed a tiny limit"}}}}
	_, ok := validateContextSize(messages, 1)
	assert.False(t, ok)
}

func TestValidateContextSizeZeroLimitNeverFails(t *testing.T) {
	messages := []model.Message{{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "anything at all, no limit enforced here"}}}}
	_, ok := validateContextSize(messages, 0)
	assert.True(t, ok)
}

func TestTrimStepsKeepsAllTaskStepsAndRecentRest(t *testing.T) {
	steps := []journal.MemoryStep{
		{ID: "1", Kind: journal.StepTask},
		{ID: "2", Kind: journal.StepPlanning},
		{ID: "3", Kind: journal.StepAction},
		{ID: "4", Kind: journal.StepObservation},
		{ID: "5", Kind: journal.StepPlanning},
	}
	trimmed := trimSteps(steps, 2)

	var ids []string
	for _, s := range trimmed {
		ids = append(ids, s.ID)
	}
	// Task step 1 always kept; only the two most recent non-Task steps (4, 5) survive.
	assert.Equal(t, []string{"1", "4", "5"}, ids)
}

func TestTrimStepsDefaultsMinEntriesWhenNonPositive(t *testing.T) {
	steps := []journal.MemoryStep{
		{ID: "1", Kind: journal.StepPlanning},
		{ID: "2", Kind: journal.StepPlanning},
		{ID: "3", Kind: journal.StepPlanning},
		{ID: "4", Kind: journal.StepPlanning},
	}
	trimmed := trimSteps(steps, 0)
	assert.Len(t, trimmed, DefaultMinEntries)
}
