package executor

import (
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/model"
)

const (
	// charsPerToken is the fixed heuristic used to estimate text tokens:
	// no tokenizer dependency, deterministic across model providers.
	charsPerToken = 4
	// imageTokenCost is the flat per-image token estimate.
	imageTokenCost = 170
)

// estimateTokens applies the fixed ≈4-chars/token heuristic (plus a flat
// per-image cost and the raw length of any tool-call JSON) to a composed
// message list.
func estimateTokens(messages []model.Message) int {
	total := 0
	for _, m := range messages {
		for _, part := range m.Parts {
			switch p := part.(type) {
			case model.TextPart:
				total += len(p.Text) / charsPerToken
			case model.DataPart:
				total += len(p.Value) / charsPerToken
			case model.ImagePart:
				total += imageTokenCost
			case model.ToolCallPart:
				total += len(p.Input)/charsPerToken + len(p.ToolName)/charsPerToken
			case model.ToolResultPart:
				for _, rp := range p.Parts {
					total += estimateTokens([]model.Message{{Parts: []model.Part{rp}}})
				}
			case model.ArtifactPart:
				total += len(p.Preview) / charsPerToken
			}
		}
	}
	return total
}

// validateContextSize reports the estimated token count for messages and,
// when it exceeds limit, a *distrierr.ContextSizeExceeded-shaped error via
// the caller (validate itself only computes; overflow handling belongs to
// the caller, which first tries trimming).
func validateContextSize(messages []model.Message, limit int) (estimate int, ok bool) {
	estimate = estimateTokens(messages)
	return estimate, limit <= 0 || estimate <= limit
}

// trimSteps keeps every Task step and the minEntries most recent non-Task
// steps (minEntries <= 0 means DefaultMinEntries), dropping older non-Task
// steps, and keeps the original append order. It does not look at the
// token budget; composePrompt drops further steps if the result is still
// too large.
func trimSteps(steps []journal.MemoryStep, minEntries int) []journal.MemoryStep {
	if minEntries <= 0 {
		minEntries = DefaultMinEntries
	}

	var tasks, rest []journal.MemoryStep
	for _, s := range steps {
		if s.Kind == journal.StepTask {
			tasks = append(tasks, s)
		} else {
			rest = append(rest, s)
		}
	}
	if len(rest) > minEntries {
		rest = rest[len(rest)-minEntries:]
	}

	// Re-merge preserving original append order.
	kept := make(map[string]bool, len(tasks)+len(rest))
	for _, s := range tasks {
		kept[s.ID] = true
	}
	for _, s := range rest {
		kept[s.ID] = true
	}
	out := make([]journal.MemoryStep, 0, len(kept))
	for _, s := range steps {
		if kept[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
