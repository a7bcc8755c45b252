package ai

import (
	"github.com/driftchat/driftchat/ai/llm"
	"github.com/driftchat/driftchat/store"
)

// ComputeCost prices one completed generation. Model prices are USD
// per one million tokens; enrichment costs are flat per-request sums
// accumulated during context building.
//
// When the provider reported no usage the cost is unknown, not zero:
// the result is nil so callers persist nil rather than a bogus figure.
func ComputeCost(model *store.EnabledModel, usage *llm.Usage, enrichmentCostUsd float64) *float64 {
	if usage == nil {
		return nil
	}
	cost := float64(usage.PromptTokens)*model.PromptPrice/1e6 +
		float64(usage.CompletionTokens)*model.CompletionPrice/1e6 +
		enrichmentCostUsd
	return &cost
}
