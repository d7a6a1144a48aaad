package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/store"
)

func fixedNow() time.Time { return time.UnixMilli(600_000) }

func seedUsage(t *testing.T, claudeDir, cwd, sid string) {
	t.Helper()
	files := store.NewUsageFiles(claudeDir, cwd)
	require.NoError(t, os.MkdirAll(files.Dir(), 0o755))
	require.NoError(t, os.WriteFile(files.TranscriptPath(sid), []byte("{}\n"), 0o644))
	require.NoError(t, files.Save(sid, &model.UsageFile{
		Requests:  2,
		TotalCost: 0.0105,
		Models: map[string]*model.ModelAccumulator{
			"claude-sonnet-4": {
				Requests:    2,
				UsageRecord: model.UsageRecord{InputTokens: 1000, OutputTokens: 500},
				Cost:        0.0105,
				Last:        &model.LastRequest{UTCTimestamp: 300_000},
			},
		},
	}))
}

func TestLoadUsageCmdFollowsNewest(t *testing.T) {
	claudeDir := t.TempDir()
	seedUsage(t, claudeDir, "/work/app", "s1")

	msg := loadUsageCmd(claudeDir, "/work/app", "", fixedNow)()
	loaded, ok := msg.(UsageLoadedMsg)
	require.True(t, ok)
	require.NoError(t, loaded.Err)
	assert.Equal(t, "s1", loaded.SessionID)
	assert.Equal(t, int64(2), loaded.Usage.Requests)
}

func TestLoadUsageCmdNoFiles(t *testing.T) {
	msg := loadUsageCmd(t.TempDir(), "/work/none", "", fixedNow)()
	loaded := msg.(UsageLoadedMsg)
	assert.ErrorIs(t, loaded.Err, errNoUsage)
}

func TestAppUpdateAndView(t *testing.T) {
	claudeDir := t.TempDir()
	seedUsage(t, claudeDir, "/work/app", "s1")

	a := NewApp(claudeDir, "/work/app", "s1")
	a.now = fixedNow

	m, _ := a.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	m, _ = m.Update(loadUsageCmd(claudeDir, "/work/app", "s1", fixedNow)())
	view := m.View()

	assert.Contains(t, view, "session s1")
	assert.Contains(t, view, "$0.0105")
	assert.Contains(t, view, "claude-sonnet-4")
	assert.Contains(t, view, "5m ago")
	assert.Contains(t, view, "s1.usage.json")
}

func TestAppShowsLoadError(t *testing.T) {
	a := NewApp(t.TempDir(), "/work/app", "")
	m, _ := a.Update(UsageLoadedMsg{Err: errNoUsage, At: fixedNow()})
	assert.Contains(t, m.View(), "no usage file yet")
}

func TestAppQuitKeys(t *testing.T) {
	a := NewApp(t.TempDir(), "/work/app", "")
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		_, cmd := a.Update(key)
		require.NotNil(t, cmd)
		_, isQuit := cmd().(tea.QuitMsg)
		assert.True(t, isQuit, "key %q should quit", key.String())
	}
}

func TestFileChangedReloads(t *testing.T) {
	a := NewApp(t.TempDir(), "/work/app", "")
	_, cmd := a.Update(FileChangedMsg{Path: "x.usage.json"})
	assert.NotNil(t, cmd)
}

func TestRelevant(t *testing.T) {
	dir := "/state/projects/-work-app"
	tests := []struct {
		name   string
		ev     fsnotify.Event
		pinned string
		want   bool
	}{
		{"usage create", fsnotify.Event{Name: filepath.Join(dir, "s1.usage.json"), Op: fsnotify.Create}, "", true},
		{"rename into place", fsnotify.Event{Name: filepath.Join(dir, "s1.usage.json"), Op: fsnotify.Rename}, "", true},
		{"temp file", fsnotify.Event{Name: filepath.Join(dir, ".s1.abc.tmp"), Op: fsnotify.Create}, "", false},
		{"transcript", fsnotify.Event{Name: filepath.Join(dir, "s1.jsonl"), Op: fsnotify.Write}, "", false},
		{"chmod only", fsnotify.Event{Name: filepath.Join(dir, "s1.usage.json"), Op: fsnotify.Chmod}, "", false},
		{"other session pinned", fsnotify.Event{Name: filepath.Join(dir, "s2.usage.json"), Op: fsnotify.Write}, "s1", false},
		{"pinned session", fsnotify.Event{Name: filepath.Join(dir, "s1.usage.json"), Op: fsnotify.Write}, "s1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.ev, tt.pinned))
		})
	}
}

func TestWatcherDeliversChanges(t *testing.T) {
	claudeDir := t.TempDir()
	seedUsage(t, claudeDir, "/work/app", "s1")

	a := NewApp(claudeDir, "/work/app", "")
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Close() })
	go forwardEvents(a.watcher, "", a.events)

	seedUsage(t, claudeDir, "/work/app", "s2")

	select {
	case msg := <-a.events:
		changed, ok := msg.(FileChangedMsg)
		require.True(t, ok, "got %T", msg)
		assert.True(t, strings.HasSuffix(changed.Path, ".usage.json"))
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
}
