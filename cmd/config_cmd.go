package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Claude binary:    %s\n", cfg.General.ClaudeBin)
	fmt.Printf("    Claude directory: %s\n", config.ClaudeDir(cfg))
	fmt.Printf("    Verbose:          %v\n", config.Verbose(cfg))
	fmt.Println()

	fmt.Println("  [API]")
	fmt.Printf("    Base URL: %s", config.BaseURL(cfg))
	if os.Getenv("ANTHROPIC_BASE_URL") != "" {
		fmt.Print(" (from ANTHROPIC_BASE_URL)")
	}
	fmt.Println()
	fmt.Println()

	fmt.Println("  [History]")
	fmt.Printf("    Enabled: %v\n", cfg.History.Enabled)
	fmt.Printf("    Path:    %s\n", config.HistoryPath(cfg))
	fmt.Println()

	fmt.Println("  [Monitor]")
	if cfg.Monitor.Addr != "" {
		fmt.Printf("    Address:    %s\n", cfg.Monitor.Addr)
	} else {
		fmt.Println("    Address:    disabled")
	}
	fmt.Printf("    Rate limit: %.0f req/s per client\n", cfg.Monitor.RateLimit)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	table := config.NewPricingTable(cfg.Pricing)
	rows := make([][]string, 0, len(table.Rows()))
	for _, r := range table.Rows() {
		rows = append(rows, []string{
			r.Family,
			cli.FormatCost(r.Pricing.InputPerMTok),
			cli.FormatCost(r.Pricing.OutputPerMTok),
			cli.FormatCost(r.Pricing.CacheWritePerMTok),
			cli.FormatCost(r.Pricing.CacheReadPerMTok),
		})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   "Pricing (USD per million tokens)",
		Headers: []string{"Family", "Input", "Output", "Cache Write", "Cache Read"},
		Rows:    rows,
	}))
	fmt.Println()

	fmt.Println("  Run `cccost setup` to reconfigure.")
	return nil
}
