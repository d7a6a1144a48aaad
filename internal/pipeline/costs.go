package pipeline

import (
	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/model"
)

// CalculateCost returns the dollar cost of u at pricing. A nil pricing row
// (unknown model) costs exactly zero.
func CalculateCost(u model.UsageRecord, pricing *config.ModelPricing) float64 {
	if pricing == nil {
		return 0
	}
	cost := float64(u.InputTokens) / 1_000_000 * pricing.InputPerMTok
	cost += float64(u.OutputTokens) / 1_000_000 * pricing.OutputPerMTok
	cost += float64(u.CacheCreationInputTokens) / 1_000_000 * pricing.CacheWritePerMTok
	cost += float64(u.CacheReadInputTokens) / 1_000_000 * pricing.CacheReadPerMTok
	return cost
}

// CostBreakdown splits a cost into its four token classes.
type CostBreakdown struct {
	Input      float64
	Output     float64
	CacheWrite float64
	CacheRead  float64
}

// Total returns the sum of all classes.
func (b CostBreakdown) Total() float64 {
	return b.Input + b.Output + b.CacheWrite + b.CacheRead
}

// BreakdownCost returns the per-class cost of u at pricing.
func BreakdownCost(u model.UsageRecord, pricing *config.ModelPricing) CostBreakdown {
	if pricing == nil {
		return CostBreakdown{}
	}
	return CostBreakdown{
		Input:      float64(u.InputTokens) / 1_000_000 * pricing.InputPerMTok,
		Output:     float64(u.OutputTokens) / 1_000_000 * pricing.OutputPerMTok,
		CacheWrite: float64(u.CacheCreationInputTokens) / 1_000_000 * pricing.CacheWritePerMTok,
		CacheRead:  float64(u.CacheReadInputTokens) / 1_000_000 * pricing.CacheReadPerMTok,
	}
}
