// Package cmd implements the cccost CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/logging"
	"github.com/theirongolddev/cccost/internal/tui/theme"
)

var (
	flagVerbose   bool
	flagDebug     bool
	flagClaudeBin string
	flagClaudeDir string
	flagNoHistory bool
	flagMonitor   string
)

var rootCmd = &cobra.Command{
	Use:   "cccost [flags] [-- claude args...]",
	Short: "Run claude and track what every request costs",
	Long: `cccost launches claude behind a local proxy, records the token usage of
every Messages API response, and keeps a per-session usage file next to the
session transcript. A summary is printed when claude exits.

Arguments after -- are passed to claude unchanged.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWrap,
}

// ExitError carries the wrapped process's exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute is the main entry point called from main.go.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "cccost: %v\n", err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagClaudeDir, "claude-dir", "", "Claude state directory (default ~/.claude)")

	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "Print a line for every tracked request")
	rootCmd.Flags().StringVar(&flagClaudeBin, "claude-bin", "", "Claude binary to run")
	rootCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not record requests in the history ledger")
	rootCmd.Flags().StringVar(&flagMonitor, "monitor", "", "Serve live usage on this address (e.g. 127.0.0.1:8788)")
}

// loadConfig reads the config file and applies persistent flag overrides.
// A broken config file is reported and replaced by defaults.
func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	cfg.General.ClaudeDirOverride = flagClaudeDir
	theme.SetActive(cfg.Appearance.Theme)
	logging.Init(os.Stderr, flagDebug || config.Debug(), false)
	return cfg
}

func workingDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return cwd, nil
}
