package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theirongolddev/cccost/internal/model"
)

func newFiles(t *testing.T) (*UsageFiles, string) {
	t.Helper()
	claudeDir := t.TempDir()
	files := NewUsageFiles(claudeDir, "/work/projects/demo")
	if err := os.MkdirAll(files.Dir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return files, claudeDir
}

func writeTranscript(t *testing.T, files *UsageFiles, sessionID string) {
	t.Helper()
	if err := os.WriteFile(files.TranscriptPath(sessionID), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleFile() *model.UsageFile {
	return &model.UsageFile{
		Requests:  2,
		TotalCost: 0.0105,
		Models: map[string]*model.ModelAccumulator{
			"claude-sonnet-4": {
				Requests:    2,
				UsageRecord: model.UsageRecord{InputTokens: 1000, OutputTokens: 500},
				Cost:        0.0105,
				Last: &model.LastRequest{
					UTCTimestamp: 1700000000000,
					UsageRecord:  model.UsageRecord{InputTokens: 600, OutputTokens: 200},
					Cost:         0.0048,
				},
			},
		},
	}
}

func TestUsageFiles_Paths(t *testing.T) {
	files := NewUsageFiles("/home/u/.claude", "/work/projects/demo")
	want := filepath.Join("/home/u/.claude", "projects", "-work-projects-demo", "abc.usage.json")
	if got := files.Path("abc"); got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
	if got := files.TranscriptPath("abc"); !strings.HasSuffix(got, "abc.jsonl") {
		t.Fatalf("TranscriptPath = %q", got)
	}
}

func TestSave_RequiresTranscript(t *testing.T) {
	files, _ := newFiles(t)

	err := files.Save("s1", sampleFile())
	if !errors.Is(err, ErrNoTranscript) {
		t.Fatalf("Save without transcript: err = %v, want ErrNoTranscript", err)
	}
	if _, err := os.Stat(files.Path("s1")); !os.IsNotExist(err) {
		t.Fatal("usage file written without transcript")
	}
}

func TestSave_LoadRoundTrip(t *testing.T) {
	files, _ := newFiles(t)
	writeTranscript(t, files, "s1")

	if err := files.Save("s1", sampleFile()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := files.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Requests != 2 || got.TotalCost != 0.0105 {
		t.Fatalf("totals = %d / %v", got.Requests, got.TotalCost)
	}
	acc := got.Models["claude-sonnet-4"]
	if acc == nil || acc.Last == nil || acc.Last.InputTokens != 600 {
		t.Fatalf("model accumulator = %+v", acc)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(files.Dir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestSave_JSONShape(t *testing.T) {
	files, _ := newFiles(t)
	writeTranscript(t, files, "s1")

	f := sampleFile()
	f.Models["future-model-x"] = &model.ModelAccumulator{Requests: 1}
	if err := files.Save("s1", f); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(files.Path("s1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"requests\": 2,") {
		t.Fatalf("file is not indented with two spaces:\n%s", data)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"requests", "totalCost", "models"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}

	models := raw["models"].(map[string]any)
	sonnet := models["claude-sonnet-4"].(map[string]any)
	for _, key := range []string{"requests", "input_tokens", "output_tokens",
		"cache_creation_input_tokens", "cache_read_input_tokens", "cost", "last"} {
		if _, ok := sonnet[key]; !ok {
			t.Errorf("missing model key %q", key)
		}
	}
	last := sonnet["last"].(map[string]any)
	if _, ok := last["utcTimestamp"]; !ok {
		t.Error("missing last.utcTimestamp")
	}

	future := models["future-model-x"].(map[string]any)
	if future["last"] != nil {
		t.Errorf("last = %v, want null", future["last"])
	}
}

func TestLoad_MissingAndMalformed(t *testing.T) {
	files, _ := newFiles(t)

	if _, err := files.Load("absent"); !os.IsNotExist(err) {
		t.Fatalf("Load missing: err = %v, want not-exist", err)
	}

	if err := os.WriteFile(files.Path("bad"), []byte(`{"requests": 3, "models": {`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := files.Load("bad"); err == nil {
		t.Fatal("Load malformed: expected error")
	}
}

func TestLoad_NullModels(t *testing.T) {
	files, _ := newFiles(t)
	if err := os.WriteFile(files.Path("s"), []byte(`{"requests":1,"totalCost":0,"models":{"x":null}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := files.Load("s")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Models == nil || len(got.Models) != 0 {
		t.Fatalf("Models = %v, want empty map", got.Models)
	}
}

func TestInvalidSessionIDs(t *testing.T) {
	files, _ := newFiles(t)
	for _, id := range []string{"", ".", "..", "../escape", `a\b`, "x/y"} {
		if err := files.Save(id, sampleFile()); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidSession", id, err)
		}
		if _, err := files.Load(id); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("Load(%q) err = %v, want ErrInvalidSession", id, err)
		}
	}
}
