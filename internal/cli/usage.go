package cli

import (
	"time"

	"github.com/theirongolddev/cccost/internal/model"
)

// UsageHeaders are the column titles of a usage file table.
var UsageHeaders = []string{"Model", "Requests", "Input", "Output", "Cache Write", "Cache Read", "Cost", "Last"}

// UsageRows turns a usage file into table rows, most expensive model first,
// followed by a totals row.
func UsageRows(f *model.UsageFile, now time.Time) [][]string {
	if f == nil {
		return nil
	}

	var (
		rows  [][]string
		total model.UsageRecord
	)
	for _, name := range f.SortedModels() {
		acc := f.Models[name]
		last := "-"
		if acc.Last != nil {
			last = FormatAgo(acc.Last.Time(), now)
		}
		rows = append(rows, []string{
			name,
			FormatNumber(acc.Requests),
			FormatTokens(acc.InputTokens),
			FormatTokens(acc.OutputTokens),
			FormatTokens(acc.CacheCreationInputTokens),
			FormatTokens(acc.CacheReadInputTokens),
			FormatCost(acc.Cost),
			last,
		})
		total = total.Add(acc.UsageRecord)
	}

	rows = append(rows, []string{
		"Total",
		FormatNumber(f.Requests),
		FormatTokens(total.InputTokens),
		FormatTokens(total.OutputTokens),
		FormatTokens(total.CacheCreationInputTokens),
		FormatTokens(total.CacheReadInputTokens),
		FormatCost(f.TotalCost),
		"",
	})
	return rows
}
