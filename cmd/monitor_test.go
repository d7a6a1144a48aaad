package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theirongolddev/cccost/internal/logging"
	"github.com/theirongolddev/cccost/internal/monitor"
)

func TestMonitorStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "monitor.json")
	want := monitorState{PID: 42, Addr: "127.0.0.1:8788", StartedAt: time.Unix(1700000000, 0).UTC(), Cwd: "/work/app"}

	if err := writeMonitorState(path, want); err != nil {
		t.Fatalf("writeMonitorState: %v", err)
	}
	got, err := readMonitorState(path)
	if err != nil {
		t.Fatalf("readMonitorState: %v", err)
	}
	if got.PID != want.PID || got.Addr != want.Addr || !got.StartedAt.Equal(want.StartedAt) || got.Cwd != want.Cwd {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Error("current process should be alive")
	}
	if processAlive(0) {
		t.Error("pid 0 should not be alive")
	}
}

func TestStartMonitor_WritesBoundAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statePath := filepath.Join(t.TempDir(), "monitor.json")
	mon := monitor.New(monitor.Config{Addr: "127.0.0.1:0"}, nil)
	if err := startMonitor(ctx, mon, statePath, "/work/app", logging.Discard()); err != nil {
		t.Fatalf("startMonitor: %v", err)
	}

	st, err := readMonitorState(statePath)
	if err != nil {
		t.Fatalf("readMonitorState: %v", err)
	}
	if st.PID != os.Getpid() || st.Cwd != "/work/app" {
		t.Errorf("state = %+v", st)
	}
	if _, port, _ := net.SplitHostPort(st.Addr); port == "0" || port == "" {
		t.Fatalf("state addr %q is not the bound address", st.Addr)
	}

	resp, err := http.Get("http://" + st.Addr + "/healthz")
	if err != nil {
		t.Fatalf("monitor not reachable at recorded address: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestStartMonitor_BindFailureWritesNoState(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer taken.Close()

	statePath := filepath.Join(t.TempDir(), "monitor.json")
	mon := monitor.New(monitor.Config{Addr: taken.Addr().String()}, nil)
	if err := startMonitor(context.Background(), mon, statePath, "/work/app", logging.Discard()); err == nil {
		t.Fatal("expected a listen error on a taken address")
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Fatalf("state file should not exist, stat err = %v", err)
	}
}
