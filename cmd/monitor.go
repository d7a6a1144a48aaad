package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/monitor"
)

// monitorState is written while a wrapper serves the monitor so that
// `monitor status` can find it without --addr.
type monitorState struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Cwd       string    `json:"cwd"`
}

var flagMonitorAddr string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Inspect the live monitor of a running session",
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show usage reported by a running monitor",
	RunE:  runMonitorStatus,
}

func init() {
	monitorStatusCmd.Flags().StringVar(&flagMonitorAddr, "addr", "", "Monitor address (default: from the running wrapper)")
	monitorCmd.AddCommand(monitorStatusCmd)
	rootCmd.AddCommand(monitorCmd)
}

func runMonitorStatus(_ *cobra.Command, _ []string) error {
	cfg := loadConfig()

	addr := flagMonitorAddr
	if addr == "" {
		st, err := readMonitorState(monitorStatePath())
		switch {
		case err == nil && processAlive(st.PID):
			addr = st.Addr
			fmt.Printf("  Wrapper PID: %d (%s)\n", st.PID, st.Cwd)
		case err == nil:
			fmt.Printf("  Stale monitor state (pid %d not alive)\n", st.PID)
			_ = os.Remove(monitorStatePath())
		}
	}
	if addr == "" {
		addr = cfg.Monitor.Addr
	}
	if addr == "" {
		fmt.Println("  Monitor: not running")
		return nil
	}

	fmt.Printf("  Address: http://%s\n", addr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := monitor.FetchStatus(ctx, &http.Client{}, "http://"+addr)
	if err != nil {
		fmt.Printf("  API status: unreachable (%v)\n", err)
		return nil
	}

	if st.Summary.SessionID != "" {
		fmt.Printf("  Session: %s\n", st.Summary.SessionID)
	}
	fmt.Printf("  Up since: %s\n", st.StartedAt.Local().Format(time.RFC3339))
	if st.LastEventAt.IsZero() {
		fmt.Println("  Last request: none yet")
	} else {
		fmt.Printf("  Last request: %s\n", cli.FormatAgo(st.LastEventAt, time.Now()))
	}
	fmt.Printf("  Requests: %s\n", cli.FormatNumber(st.Summary.Requests))
	fmt.Printf("  Tokens: %s\n", cli.FormatTokens(st.Summary.Tokens))
	fmt.Printf("  Cost: %s\n", cli.FormatCostExact(st.Summary.TotalCostUSD))
	fmt.Printf("  Stream clients: %d\n", st.SubscriberCount)

	names := make([]string, 0, len(st.Summary.Models))
	for name := range st.Summary.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := st.Summary.Models[name]
		fmt.Printf("    %-28s %6s req  %s\n", name, cli.FormatNumber(m.Requests), cli.FormatCostExact(m.CostUSD))
	}
	return nil
}

func monitorStatePath() string {
	return filepath.Join(config.DataDir(), "monitor.json")
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func writeMonitorState(path string, st monitorState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readMonitorState(path string) (monitorState, error) {
	var st monitorState
	//nolint:gosec // state path is under the user's data dir
	data, err := os.ReadFile(path)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, err
	}
	return st, nil
}
