package cmd

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/tui"
)

var flagWatchSession string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of this directory's session usage",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&flagWatchSession, "session", "s", "", "Session id (default: follow the most recent)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	cwd, err := workingDir()
	if err != nil {
		return err
	}

	app := tui.NewApp(config.ClaudeDir(cfg), cwd, flagWatchSession)
	if err := app.Start(); err != nil {
		// Still usable with manual reloads.
		slog.Warn("live updates disabled", "error", err)
	}
	defer func() { _ = app.Close() }()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("viewer error: %w", err)
	}
	return nil
}
