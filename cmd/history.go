package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/pipeline"
	"github.com/theirongolddev/cccost/internal/store"
)

var (
	flagHistoryDays    int
	flagHistoryBy      string
	flagHistoryModel   string
	flagHistoryProject string
	flagPruneDays      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Aggregate the request history ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger rows older than --older-than days",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryDays, "days", "n", 30, "Time window in days")
	historyCmd.Flags().StringVar(&flagHistoryBy, "by", "model", "Group by: model, day, or session")
	historyCmd.Flags().StringVarP(&flagHistoryModel, "model", "m", "", "Filter to model (substring match)")
	historyCmd.Flags().StringVarP(&flagHistoryProject, "project", "p", "", "Filter to project (substring match)")

	historyPruneCmd.Flags().IntVar(&flagPruneDays, "older-than", 90, "Age in days")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(cfg config.Config) (*store.History, error) {
	h, err := store.OpenHistory(config.HistoryPath(cfg), "")
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return h, nil
}

func runHistory(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	by := strings.ToLower(flagHistoryBy)
	if by != "model" && by != "day" && by != "session" {
		return fmt.Errorf("invalid --by %q: want model, day, or session", flagHistoryBy)
	}

	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	now := time.Now()
	since := now.AddDate(0, 0, -flagHistoryDays)
	rows, err := h.Since(since)
	if err != nil {
		return err
	}
	rows = pipeline.FilterByModel(rows, flagHistoryModel)
	rows = pipeline.FilterByProject(rows, flagHistoryProject)

	if len(rows) == 0 {
		fmt.Println("\n  No requests recorded in the selected time range.")
		return nil
	}

	fmt.Println()
	switch by {
	case "day":
		renderHistoryDays(rows, since, now)
	case "session":
		renderHistorySessions(rows)
	default:
		renderHistoryModels(rows)
	}
	return nil
}

func renderHistoryModels(rows []model.HistoryRow) {
	models := pipeline.AggregateModels(rows)

	fmt.Println(cli.RenderTitle(fmt.Sprintf("MODELS  Last %dd", flagHistoryDays)))
	fmt.Println()

	out := make([][]string, 0, len(models))
	for _, ms := range models {
		out = append(out, []string{
			ms.Model,
			cli.FormatNumber(int64(ms.Requests)),
			cli.FormatTokens(ms.InputTokens),
			cli.FormatTokens(ms.OutputTokens),
			cli.FormatTokens(ms.CacheCreationInputTokens),
			cli.FormatTokens(ms.CacheReadInputTokens),
			cli.FormatCost(ms.EstimatedCost),
			cli.FormatPercent(ms.SharePercent),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Model", "Requests", "Input", "Output", "Cache Write", "Cache Read", "Cost", "Share"},
		Rows:    out,
	}))
}

func renderHistoryDays(rows []model.HistoryRow, since, until time.Time) {
	days := pipeline.AggregateDays(rows, since, until)

	// Oldest first for the sparkline.
	costs := make([]float64, len(days))
	for i, d := range days {
		costs[len(days)-1-i] = d.EstimatedCost
	}

	fmt.Println(cli.RenderTitle(fmt.Sprintf("DAILY  Last %dd", flagHistoryDays)))
	fmt.Println()
	fmt.Printf("  %s\n\n", cli.RenderSparkline(costs))

	out := make([][]string, 0, len(days))
	for _, d := range days {
		if d.Requests == 0 {
			continue
		}
		out = append(out, []string{
			d.Date.Format("2006-01-02 Mon"),
			cli.FormatNumber(int64(d.Sessions)),
			cli.FormatNumber(int64(d.Requests)),
			cli.FormatTokens(d.TotalTokens()),
			cli.FormatCost(d.EstimatedCost),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Date", "Sessions", "Requests", "Tokens", "Cost"},
		Rows:    out,
	}))
}

func renderHistorySessions(rows []model.HistoryRow) {
	sessions := pipeline.AggregateSessions(rows)

	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  Last %dd", flagHistoryDays)))
	fmt.Println()

	out := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		id := s.SessionID
		if id == "" {
			id = "(no session)"
		}
		out = append(out, []string{
			id,
			s.Project,
			s.StartTime.Local().Format("01-02 15:04"),
			cli.FormatElapsed(s.EndTime.Sub(s.StartTime)),
			cli.FormatNumber(int64(s.Requests)),
			cli.FormatTokens(s.TotalTokens()),
			cli.FormatCost(s.EstimatedCost),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Session", "Project", "Started", "Span", "Requests", "Tokens", "Cost"},
		Rows:    out,
	}))
}

func runHistoryPrune(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	if flagPruneDays < 1 {
		return fmt.Errorf("--older-than must be at least 1")
	}

	h, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	n, err := h.Prune(time.Now().AddDate(0, 0, -flagPruneDays))
	if err != nil {
		return err
	}
	fmt.Printf("  Removed %s requests older than %d days.\n", cli.FormatNumber(n), flagPruneDays)
	return nil
}
