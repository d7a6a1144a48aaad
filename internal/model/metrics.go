package model

import "time"

// HistoryRow is one request stored in the history ledger.
type HistoryRow struct {
	SessionID string
	Project   string
	Model     string
	Timestamp time.Time
	UsageRecord
	Cost float64
}

// ModelStats holds aggregated metrics for a single model.
type ModelStats struct {
	Model    string
	Requests int
	UsageRecord
	EstimatedCost float64
	SharePercent  float64
}

// DailyStats holds metrics for a single calendar day.
type DailyStats struct {
	Date     time.Time
	Sessions int
	Requests int
	UsageRecord
	EstimatedCost float64
}

// SessionStats holds aggregated metrics for a single session.
type SessionStats struct {
	SessionID string
	Project   string
	StartTime time.Time
	EndTime   time.Time
	Requests  int
	Models    []string
	UsageRecord
	EstimatedCost float64
}

// TotalTokens returns the sum of all four counters.
func (u UsageRecord) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}
