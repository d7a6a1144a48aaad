package pipeline

import (
	"math"
	"testing"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/model"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateCost(t *testing.T) {
	sonnet, _ := config.LookupPricing("claude-sonnet-4")
	opus, _ := config.LookupPricing("claude-opus-4")

	tests := []struct {
		name    string
		usage   model.UsageRecord
		pricing *config.ModelPricing
		want    float64
	}{
		{
			name:    "sonnet input and output",
			usage:   model.UsageRecord{InputTokens: 1000, OutputTokens: 500},
			pricing: &sonnet,
			want:    0.0105,
		},
		{
			name: "opus all classes",
			usage: model.UsageRecord{
				InputTokens:              1_000_000,
				OutputTokens:             1_000_000,
				CacheCreationInputTokens: 1_000_000,
				CacheReadInputTokens:     1_000_000,
			},
			pricing: &opus,
			want:    15 + 75 + 18.75 + 1.5,
		},
		{
			name:    "unknown model",
			usage:   model.UsageRecord{InputTokens: 123456, OutputTokens: 789},
			pricing: nil,
			want:    0,
		},
		{
			name:    "zero usage",
			usage:   model.UsageRecord{},
			pricing: &opus,
			want:    0,
		},
		{
			name:    "missing rates count as zero",
			usage:   model.UsageRecord{InputTokens: 1_000_000, CacheReadInputTokens: 1_000_000},
			pricing: &config.ModelPricing{InputPerMTok: 2},
			want:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCost(tt.usage, tt.pricing)
			if !approx(got, tt.want) {
				t.Fatalf("CalculateCost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateCost_ZeroUsageAnyRow(t *testing.T) {
	for _, row := range config.DefaultPricing {
		p := row.Pricing
		if got := CalculateCost(model.UsageRecord{}, &p); got != 0 {
			t.Fatalf("%s: cost of zero usage = %v", row.Family, got)
		}
	}
}

func TestBreakdownCost_SumsToTotal(t *testing.T) {
	haiku, _ := config.LookupPricing("claude-haiku-4-5")
	u := model.UsageRecord{InputTokens: 5000, OutputTokens: 1200, CacheCreationInputTokens: 300, CacheReadInputTokens: 90000}

	b := BreakdownCost(u, &haiku)
	if !approx(b.Total(), CalculateCost(u, &haiku)) {
		t.Fatalf("breakdown total %v != cost %v", b.Total(), CalculateCost(u, &haiku))
	}
	if !approx(b.CacheRead, 90000.0/1e6*0.08) {
		t.Fatalf("CacheRead = %v", b.CacheRead)
	}
	if (BreakdownCost(u, nil) != CostBreakdown{}) {
		t.Fatal("nil pricing should give an empty breakdown")
	}
}
