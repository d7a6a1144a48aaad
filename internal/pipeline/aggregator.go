package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/cccost/internal/model"
)

// AggregateModels computes per-model statistics from ledger rows.
func AggregateModels(rows []model.HistoryRow) []model.ModelStats {
	modelMap := make(map[string]*model.ModelStats)
	total := 0

	for _, r := range rows {
		ms, ok := modelMap[r.Model]
		if !ok {
			ms = &model.ModelStats{Model: r.Model}
			modelMap[r.Model] = ms
		}
		ms.Requests++
		ms.UsageRecord = ms.UsageRecord.Add(r.UsageRecord)
		ms.EstimatedCost += r.Cost
		total++
	}

	// Compute share percentages and sort by cost descending
	models := make([]model.ModelStats, 0, len(modelMap))
	for _, ms := range modelMap {
		if total > 0 {
			ms.SharePercent = float64(ms.Requests) / float64(total) * 100
		}
		models = append(models, *ms)
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].EstimatedCost != models[j].EstimatedCost {
			return models[i].EstimatedCost > models[j].EstimatedCost
		}
		return models[i].Model < models[j].Model
	})

	return models
}

// AggregateDays computes per-day statistics, most recent first. Every day
// between since and until is present, with zeros for idle days.
func AggregateDays(rows []model.HistoryRow, since, until time.Time) []model.DailyStats {
	dayMap := make(map[string]*model.DailyStats)
	daySessions := make(map[string]map[string]struct{})

	for _, r := range rows {
		dayKey := r.Timestamp.Local().Format("2006-01-02")
		ds, ok := dayMap[dayKey]
		if !ok {
			t, _ := time.ParseInLocation("2006-01-02", dayKey, time.Local)
			ds = &model.DailyStats{Date: t}
			dayMap[dayKey] = ds
			daySessions[dayKey] = make(map[string]struct{})
		}
		ds.Requests++
		ds.UsageRecord = ds.UsageRecord.Add(r.UsageRecord)
		ds.EstimatedCost += r.Cost
		if r.SessionID != "" {
			daySessions[dayKey][r.SessionID] = struct{}{}
		}
	}
	for key, ds := range dayMap {
		ds.Sessions = len(daySessions[key])
	}

	if !since.IsZero() && !until.IsZero() {
		day := startOfDay(since)
		end := startOfDay(until)
		for !day.After(end) {
			dayKey := day.Format("2006-01-02")
			if _, ok := dayMap[dayKey]; !ok {
				dayMap[dayKey] = &model.DailyStats{Date: day}
			}
			day = day.AddDate(0, 0, 1)
		}
	}

	days := make([]model.DailyStats, 0, len(dayMap))
	for _, ds := range dayMap {
		days = append(days, *ds)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})

	return days
}

// AggregateSessions computes per-session statistics, most recent first.
// Rows without a session id are grouped under "".
func AggregateSessions(rows []model.HistoryRow) []model.SessionStats {
	sessMap := make(map[string]*model.SessionStats)
	sessModels := make(map[string]map[string]struct{})

	for _, r := range rows {
		ss, ok := sessMap[r.SessionID]
		if !ok {
			ss = &model.SessionStats{SessionID: r.SessionID, Project: r.Project, StartTime: r.Timestamp}
			sessMap[r.SessionID] = ss
			sessModels[r.SessionID] = make(map[string]struct{})
		}
		if r.Timestamp.Before(ss.StartTime) {
			ss.StartTime = r.Timestamp
		}
		if r.Timestamp.After(ss.EndTime) {
			ss.EndTime = r.Timestamp
		}
		ss.Requests++
		ss.UsageRecord = ss.UsageRecord.Add(r.UsageRecord)
		ss.EstimatedCost += r.Cost
		sessModels[r.SessionID][r.Model] = struct{}{}
	}

	sessions := make([]model.SessionStats, 0, len(sessMap))
	for id, ss := range sessMap {
		for m := range sessModels[id] {
			ss.Models = append(ss.Models, m)
		}
		sort.Strings(ss.Models)
		sessions = append(sessions, *ss)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].EndTime.After(sessions[j].EndTime)
	})

	return sessions
}

// FilterByModel returns rows whose model contains the filter (case-insensitive).
func FilterByModel(rows []model.HistoryRow, modelFilter string) []model.HistoryRow {
	if modelFilter == "" {
		return rows
	}
	var result []model.HistoryRow
	for _, r := range rows {
		if containsIgnoreCase(r.Model, modelFilter) {
			result = append(result, r)
		}
	}
	return result
}

// FilterByProject returns rows for a single project (case-insensitive substring).
func FilterByProject(rows []model.HistoryRow, project string) []model.HistoryRow {
	if project == "" {
		return rows
	}
	var result []model.HistoryRow
	for _, r := range rows {
		if containsIgnoreCase(r.Project, project) {
			result = append(result, r)
		}
	}
	return result
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func startOfDay(t time.Time) time.Time {
	l := t.Local()
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.Local)
}
