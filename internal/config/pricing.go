package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ModelPricing holds per-million-token prices for a model family.
type ModelPricing struct {
	InputPerMTok      float64 `json:"input_per_mtok"`
	OutputPerMTok     float64 `json:"output_per_mtok"`
	CacheWritePerMTok float64 `json:"cache_write_per_mtok"`
	CacheReadPerMTok  float64 `json:"cache_read_per_mtok"`
}

// PricingRow binds a model-name fragment to its rates.
type PricingRow struct {
	Family  string
	Pricing ModelPricing
}

// DefaultPricing is the built-in table, matched in order.
var DefaultPricing = []PricingRow{
	{Family: "opus", Pricing: ModelPricing{
		InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50,
	}},
	{Family: "sonnet", Pricing: ModelPricing{
		InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30,
	}},
	{Family: "haiku", Pricing: ModelPricing{
		InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08,
	}},
}

// PricingTable resolves a model identifier to a pricing row by
// case-sensitive substring match. The first matching row wins.
type PricingTable struct {
	rows []PricingRow
}

// NewPricingTable builds a table from the defaults with overrides applied.
// Overrides for known families replace only the rates they set; unknown
// fragments become new rows matched after the built-in ones.
func NewPricingTable(overrides map[string]ModelPricingOverride) *PricingTable {
	rows := make([]PricingRow, len(DefaultPricing))
	copy(rows, DefaultPricing)

	known := make(map[string]int, len(rows))
	for i, r := range rows {
		known[r.Family] = i
	}

	extra := make([]string, 0, len(overrides))
	for family := range overrides {
		if _, ok := known[family]; !ok && family != "" {
			extra = append(extra, family)
		}
	}
	sort.Strings(extra)

	for family, o := range overrides {
		if i, ok := known[family]; ok {
			rows[i].Pricing = o.apply(rows[i].Pricing)
		}
	}
	for _, family := range extra {
		rows = append(rows, PricingRow{Family: family, Pricing: overrides[family].apply(ModelPricing{})})
	}

	return &PricingTable{rows: rows}
}

// Lookup returns the pricing row for a model. Unknown models return false.
func (t *PricingTable) Lookup(model string) (ModelPricing, bool) {
	if t == nil {
		return ModelPricing{}, false
	}
	for _, r := range t.rows {
		if strings.Contains(model, r.Family) {
			return r.Pricing, true
		}
	}
	return ModelPricing{}, false
}

// Family returns the fragment that matched model, or "" if none did.
func (t *PricingTable) Family(model string) string {
	if t == nil {
		return ""
	}
	for _, r := range t.rows {
		if strings.Contains(model, r.Family) {
			return r.Family
		}
	}
	return ""
}

// Rows returns a copy of the table in match order.
func (t *PricingTable) Rows() []PricingRow {
	out := make([]PricingRow, len(t.rows))
	copy(out, t.rows)
	return out
}

var defaultTable = NewPricingTable(nil)

// LookupPricing resolves a model against the built-in table.
func LookupPricing(model string) (ModelPricing, bool) {
	return defaultTable.Lookup(model)
}

func (o ModelPricingOverride) apply(p ModelPricing) ModelPricing {
	if o.InputPerMTok != nil {
		p.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		p.OutputPerMTok = *o.OutputPerMTok
	}
	if o.CacheWritePerMTok != nil {
		p.CacheWritePerMTok = *o.CacheWritePerMTok
	}
	if o.CacheReadPerMTok != nil {
		p.CacheReadPerMTok = *o.CacheReadPerMTok
	}
	return p
}

// Validate rejects rates that are negative, NaN or infinite.
func (o ModelPricingOverride) Validate() error {
	rates := []struct {
		key  string
		rate *float64
	}{
		{"input_per_mtok", o.InputPerMTok},
		{"output_per_mtok", o.OutputPerMTok},
		{"cache_write_per_mtok", o.CacheWritePerMTok},
		{"cache_read_per_mtok", o.CacheReadPerMTok},
	}
	for _, r := range rates {
		if r.rate == nil {
			continue
		}
		if v := *r.rate; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s = %v: want a finite, non-negative rate", r.key, v)
		}
	}
	return nil
}

func validatePricing(overrides map[string]ModelPricingOverride) error {
	families := make([]string, 0, len(overrides))
	for family := range overrides {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		if err := overrides[family].Validate(); err != nil {
			return fmt.Errorf("pricing.%s: %w", family, err)
		}
	}
	return nil
}
