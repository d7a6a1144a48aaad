package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/interceptor"
	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/monitor"
	"github.com/theirongolddev/cccost/internal/pipeline"
	"github.com/theirongolddev/cccost/internal/proxy"
	"github.com/theirongolddev/cccost/internal/source"
	"github.com/theirongolddev/cccost/internal/store"
	"github.com/theirongolddev/cccost/internal/summary"
)

// drainTimeout bounds how long exit waits for in-flight usage to land.
const drainTimeout = 2 * time.Second

func runWrap(_ *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := slog.Default()

	cwd, err := workingDir()
	if err != nil {
		return err
	}

	bin := cfg.General.ClaudeBin
	if flagClaudeBin != "" {
		bin = flagClaudeBin
	}
	binPath, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("finding %s: %w", bin, err)
	}

	apiBase := config.BaseURL(cfg)
	upstream, err := url.Parse(apiBase)
	if err != nil || upstream.Host == "" {
		return fmt.Errorf("invalid API base URL %q", apiBase)
	}

	files := store.NewUsageFiles(config.ClaudeDir(cfg), cwd)

	var sinks []pipeline.Sink
	if flagVerbose || config.Verbose(cfg) {
		sinks = append(sinks, cli.NewVerboseSink(os.Stderr))
	}
	if cfg.History.Enabled && !flagNoHistory {
		hist, err := store.OpenHistory(config.HistoryPath(cfg), source.ProjectName(cwd))
		if err != nil {
			logger.Warn("history disabled", "error", err)
		} else {
			defer func() { _ = hist.Close() }()
			sinks = append(sinks, hist)
		}
	}

	monitorAddr := flagMonitor
	if monitorAddr == "" {
		monitorAddr = cfg.Monitor.Addr
	}
	// The monitor reads from the tracker, so it is attached after construction.
	var mon *monitor.Service
	if monitorAddr != "" {
		sinks = append(sinks, pipeline.SinkFunc(func(obs model.Observation) {
			if mon != nil {
				mon.Observe(obs)
			}
		}))
	}

	tracker := pipeline.NewTracker(
		pipeline.WithStore(files),
		pipeline.WithPricing(config.NewPricingTable(cfg.Pricing)),
		pipeline.WithSinks(sinks...),
		pipeline.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if monitorAddr != "" {
		mon = monitor.New(monitor.Config{Addr: monitorAddr, RateLimit: cfg.Monitor.RateLimit}, tracker)
		statePath := monitorStatePath()
		if err := startMonitor(ctx, mon, statePath, cwd, logger); err != nil {
			logger.Warn("monitor disabled", "error", err)
		} else {
			defer func() { _ = os.Remove(statePath) }()
		}
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	rt, err := interceptor.New(base, apiBase, tracker, interceptor.WithLogger(logger))
	if err != nil {
		return err
	}

	px := proxy.New(upstream, rt, logger)
	proxyURL, err := px.Start("127.0.0.1:0")
	if err != nil {
		return err
	}

	sum := summary.Begin(tracker, os.Stderr, files.Path)
	defer sum.End()

	child := exec.Command(binPath, args...) //nolint:gosec // runs the user's own claude binary
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = childEnv(os.Environ(), proxyURL)

	if err := child.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", bin, err)
	}

	stopSignals := forwardSignals(child.Process)
	waitErr := child.Wait()
	stopSignals()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer shutdownCancel()
	if err := px.Shutdown(shutdownCtx); err != nil {
		logger.Debug("proxy shutdown", "error", err)
	}
	if err := rt.Wait(shutdownCtx); err != nil {
		logger.Warn("usage of in-flight requests may be missing", "error", err)
	}
	cancel()

	sum.End()

	if code := exitCode(waitErr); code != 0 {
		return &ExitError{Code: code}
	}
	if waitErr != nil {
		return fmt.Errorf("waiting for %s: %w", bin, waitErr)
	}
	return nil
}

// startMonitor binds the monitor, records where it listens, then serves it
// in the background until ctx is canceled. Nothing is recorded when the
// address cannot be bound.
func startMonitor(ctx context.Context, mon *monitor.Service, statePath, cwd string, logger *slog.Logger) error {
	ln, err := mon.Listen()
	if err != nil {
		return err
	}

	if err := writeMonitorState(statePath, monitorState{
		PID:       os.Getpid(),
		Addr:      ln.Addr().String(),
		StartedAt: time.Now(),
		Cwd:       cwd,
	}); err != nil {
		logger.Debug("monitor state not written", "error", err)
	}

	go func() {
		if err := mon.Serve(ctx, ln); err != nil {
			logger.Warn("monitor stopped", "error", err)
		}
	}()
	return nil
}

// childEnv points the wrapped client at the proxy.
func childEnv(environ []string, proxyURL string) []string {
	const key = "ANTHROPIC_BASE_URL="
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if strings.HasPrefix(kv, key) {
			continue
		}
		env = append(env, kv)
	}
	return append(env, key+proxyURL)
}

// forwardSignals relays termination signals to the child. Interrupts are
// swallowed: the terminal already delivers them to the whole process group,
// and relaying would make the child see each one twice.
func forwardSignals(p *os.Process) func() {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if sig == os.Interrupt {
					continue
				}
				_ = p.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// exitCode maps a child's wait error to the code this process should exit
// with. Death by signal follows the shell convention of 128+signal.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}
