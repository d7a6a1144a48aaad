package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/source"
	"github.com/theirongolddev/cccost/internal/store"
)

var (
	flagUsageSession string
	flagUsageJSON    bool
	flagUsageAll     bool
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the usage file of a session",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().StringVarP(&flagUsageSession, "session", "s", "", "Session id (default: most recent in this directory)")
	usageCmd.Flags().BoolVar(&flagUsageJSON, "json", false, "Print the raw usage file")
	usageCmd.Flags().BoolVar(&flagUsageAll, "all", false, "List usage files of every project")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()
	claudeDir := config.ClaudeDir(cfg)

	if flagUsageAll {
		return listAllUsage(claudeDir)
	}

	cwd, err := workingDir()
	if err != nil {
		return err
	}
	files := store.NewUsageFiles(claudeDir, cwd)

	sessionID := flagUsageSession
	if sessionID == "" {
		found, err := source.ScanProject(claudeDir, cwd)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", files.Dir(), err)
		}
		if len(found) == 0 {
			fmt.Println("\n  No usage files for this directory yet.")
			return nil
		}
		sessionID = found[0].SessionID
	}

	if flagUsageJSON {
		//nolint:gosec // path is derived from the user's claude dir
		data, err := os.ReadFile(files.Path(sessionID))
		if err != nil {
			return fmt.Errorf("reading usage file: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	f, err := files.Load(sessionID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no usage file for session %s", sessionID)
		}
		return err
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSION %s  %s", sessionID, cli.FormatCostExact(f.TotalCost))))
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: cli.UsageHeaders,
		Rows:    cli.UsageRows(f, time.Now()),
	}))
	fmt.Printf("  %s\n\n", files.Path(sessionID))
	return nil
}

func listAllUsage(claudeDir string) error {
	found, err := source.ScanDir(claudeDir)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", claudeDir, err)
	}
	if len(found) == 0 {
		fmt.Println("\n  No usage files found.")
		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(found))
	var total float64
	for _, df := range found {
		f, err := store.ReadUsageFile(df.Path)
		if err != nil {
			continue
		}
		total += f.TotalCost
		rows = append(rows, []string{
			df.Project,
			df.SessionID,
			cli.FormatNumber(f.Requests),
			cli.FormatCost(f.TotalCost),
			cli.FormatAgo(df.ModTime, now),
		})
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("ALL SESSIONS  %s", cli.FormatCost(total))))
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Project", "Session", "Requests", "Cost", "Updated"},
		Rows:    rows,
	}))
	return nil
}
