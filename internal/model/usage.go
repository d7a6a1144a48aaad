// Package model defines domain types for cccost usage accounting.
package model

import (
	"sort"
	"time"
)

// UsageRecord is the token usage reported for one completed request.
type UsageRecord struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// IsZero reports whether every counter is zero.
func (u UsageRecord) IsZero() bool {
	return u == UsageRecord{}
}

// Add returns the field-wise sum of u and o.
func (u UsageRecord) Add(o UsageRecord) UsageRecord {
	return UsageRecord{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}

// LastRequest is the snapshot of the most recent request for a model.
// UTCTimestamp is milliseconds since the Unix epoch.
type LastRequest struct {
	UTCTimestamp int64 `json:"utcTimestamp"`
	UsageRecord
	Cost float64 `json:"cost"`
}

// Time returns the snapshot timestamp.
func (l *LastRequest) Time() time.Time {
	return time.UnixMilli(l.UTCTimestamp)
}

// ModelAccumulator holds cumulative usage for one model identifier.
type ModelAccumulator struct {
	Requests int64 `json:"requests"`
	UsageRecord
	Cost float64      `json:"cost"`
	Last *LastRequest `json:"last"`
}

// Clone returns a deep copy.
func (m *ModelAccumulator) Clone() *ModelAccumulator {
	c := *m
	if m.Last != nil {
		last := *m.Last
		c.Last = &last
	}
	return &c
}

// UsageFile is the persisted per-session projection of all accumulators.
type UsageFile struct {
	Requests  int64                        `json:"requests"`
	TotalCost float64                      `json:"totalCost"`
	Models    map[string]*ModelAccumulator `json:"models"`
}

// SortedModels returns model identifiers ordered by cost, highest first.
func (f *UsageFile) SortedModels() []string {
	names := make([]string, 0, len(f.Models))
	for name := range f.Models {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := f.Models[names[i]].Cost, f.Models[names[j]].Cost
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	return names
}

// LatestModel returns the model whose last snapshot is the most recent,
// skipping models for which skip returns true.
func (f *UsageFile) LatestModel(skip func(string) bool) (string, *ModelAccumulator) {
	var (
		bestName string
		best     *ModelAccumulator
	)
	for name, acc := range f.Models {
		if acc == nil || acc.Last == nil || (skip != nil && skip(name)) {
			continue
		}
		if best == nil || acc.Last.UTCTimestamp > best.Last.UTCTimestamp ||
			(acc.Last.UTCTimestamp == best.Last.UTCTimestamp && name < bestName) {
			bestName, best = name, acc
		}
	}
	return bestName, best
}

// NamedAccumulator pairs a model identifier with its accumulator.
type NamedAccumulator struct {
	Model string
	*ModelAccumulator
}

// Observation describes one recorded request after it was applied.
type Observation struct {
	SessionID string
	Model     string
	Usage     UsageRecord
	Cost      float64
	At        time.Time

	// Running session totals after this observation.
	Requests  int64
	TotalCost float64

	// Running totals of this model after this observation.
	ModelRequests int64
	ModelUsage    UsageRecord
	ModelCost     float64
}
