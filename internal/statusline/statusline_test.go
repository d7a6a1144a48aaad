package statusline

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/store"
)

func TestParseInput(t *testing.T) {
	in, err := ParseInput([]byte(`{
		"session_id": "abc",
		"cwd": "/work/app",
		"workspace": {"project_dir": "/work/app", "current_dir": "/work/app/pkg"},
		"model": {"id": "claude-sonnet-4"}
	}`), "/fallback")
	require.NoError(t, err)
	assert.Equal(t, Input{SessionID: "abc", ProjectDir: "/work/app", CurrentDir: "/work/app/pkg", ModelID: "claude-sonnet-4"}, in)

	in, err = ParseInput([]byte(`{}`), "/fallback")
	require.NoError(t, err)
	assert.Equal(t, "/fallback", in.ProjectDir)
	assert.Equal(t, "/fallback", in.CurrentDir)
	assert.Equal(t, "unknown", in.ModelID)

	_, err = ParseInput([]byte(`not json`), "/fallback")
	assert.Error(t, err)
}

func TestRelativeDir(t *testing.T) {
	assert.Equal(t, "", relativeDir("/a", "/a"))
	assert.Equal(t, "./b/c", relativeDir("/a", "/a/b/c"))
	assert.Equal(t, "../x", relativeDir("/a", "/x"))
}

func writeUsage(t *testing.T, claudeDir, cwd, sid string, f *model.UsageFile) {
	t.Helper()
	files := store.NewUsageFiles(claudeDir, cwd)
	require.NoError(t, os.MkdirAll(files.Dir(), 0o755))
	require.NoError(t, os.WriteFile(files.TranscriptPath(sid), []byte("{}\n"), 0o644))
	require.NoError(t, files.Save(sid, f))
}

func TestRenderWithUsage(t *testing.T) {
	claudeDir := t.TempDir()
	cwd := "/work/app"

	writeUsage(t, claudeDir, cwd, "s1", &model.UsageFile{
		Requests:  3,
		TotalCost: 1.23456,
		Models: map[string]*model.ModelAccumulator{
			"claude-sonnet-4": {
				Requests: 2,
				Last: &model.LastRequest{
					UTCTimestamp: 1000,
					UsageRecord:  model.UsageRecord{InputTokens: 10_000, CacheReadInputTokens: 170_000},
				},
			},
			// Newer, but haiku is ignored for context use.
			"claude-haiku-3-5": {
				Requests: 1,
				Last: &model.LastRequest{
					UTCTimestamp: 2000,
					UsageRecord:  model.UsageRecord{InputTokens: 5},
				},
			},
		},
	})

	r := NewRenderer(io.Discard, claudeDir)
	line := r.Render(Input{SessionID: "s1", ProjectDir: cwd, CurrentDir: cwd + "/pkg"})

	assert.Equal(t, "app > ./pkg | 90% (180.00k/200k) | $1.2346", ansi.Strip(line))
	assert.Contains(t, line, "\x1b[31m", "over 80%% should be red")
}

func TestRenderColorThresholds(t *testing.T) {
	tests := []struct {
		used int64
		want string
	}{
		{100_000, "\x1b[32m"},
		{130_000, "\x1b[33m"},
		{170_000, "\x1b[31m"},
	}
	for _, tt := range tests {
		claudeDir := t.TempDir()
		writeUsage(t, claudeDir, "/p", "s", &model.UsageFile{
			Models: map[string]*model.ModelAccumulator{
				"claude-opus-4": {Last: &model.LastRequest{UTCTimestamp: 1, UsageRecord: model.UsageRecord{InputTokens: tt.used}}},
			},
		})
		line := NewRenderer(io.Discard, claudeDir).Render(Input{SessionID: "s", ProjectDir: "/p", CurrentDir: "/p"})
		assert.Contains(t, line, tt.want, "used=%d", tt.used)
	}
}

func TestRenderFallsBackToDirectory(t *testing.T) {
	claudeDir := t.TempDir()
	r := NewRenderer(io.Discard, claudeDir)

	// No usage file yet.
	assert.Equal(t, "app", ansi.Strip(r.Render(Input{SessionID: "missing", ProjectDir: "/work/app", CurrentDir: "/work/app"})))

	// Half-written usage file.
	files := store.NewUsageFiles(claudeDir, "/work/app")
	require.NoError(t, os.MkdirAll(files.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(files.Dir(), "partial"+".usage.json"), []byte(`{"requests": 2, "mod`), 0o644))
	assert.Equal(t, "app", ansi.Strip(r.Render(Input{SessionID: "partial", ProjectDir: "/work/app", CurrentDir: "/work/app"})))
}
