package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/statusline"
)

var statuslineCmd = &cobra.Command{
	Use:   "statusline",
	Short: "Print a status line from the hook payload on stdin",
	Long: `Reads the status-line JSON that claude writes to the hook's stdin and
prints the project, context window use, and session cost. Configure it as
the statusLine command in claude's settings.`,
	Args: cobra.NoArgs,
	RunE: runStatusline,
}

func init() {
	rootCmd.AddCommand(statuslineCmd)
}

func runStatusline(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	out := cmd.OutOrStdout()

	cwd, _ := os.Getwd()
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		fmt.Fprintln(out, cwd)
		return nil
	}

	in, err := statusline.ParseInput(data, cwd)
	if err != nil {
		fmt.Fprintln(out, cwd)
		return nil
	}

	r := statusline.NewRenderer(out, config.ClaudeDir(cfg))
	fmt.Fprintln(out, r.Render(in))
	return nil
}
