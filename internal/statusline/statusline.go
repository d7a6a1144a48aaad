// Package statusline renders the one-line status shown by the wrapped
// client's status-line hook. It only ever reads the persisted usage file.
package statusline

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/tidwall/gjson"

	"github.com/theirongolddev/cccost/internal/store"
)

// ContextLimit is the context window assumed for every model.
const ContextLimit = 200_000

// Input is the hook payload the client writes to stdin.
type Input struct {
	SessionID  string
	ProjectDir string
	CurrentDir string
	ModelID    string
}

// ParseInput decodes the hook payload. Directories fall back to cwd and
// then to fallbackDir.
func ParseInput(data []byte, fallbackDir string) (Input, error) {
	if !gjson.ValidBytes(data) {
		return Input{}, fmt.Errorf("parsing status input: invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Input{}, fmt.Errorf("parsing status input: not an object")
	}

	cwd := root.Get("cwd").String()
	in := Input{
		SessionID:  root.Get("session_id").String(),
		ProjectDir: firstNonEmpty(root.Get("workspace.project_dir").String(), cwd, fallbackDir),
		CurrentDir: firstNonEmpty(root.Get("workspace.current_dir").String(), cwd, fallbackDir),
		ModelID:    firstNonEmpty(root.Get("model.id").String(), "unknown"),
	}
	return in, nil
}

// Renderer formats status lines. Output always carries ANSI colors since
// the hook's stdout is a pipe, not a terminal.
type Renderer struct {
	claudeDir string
	dim       lipgloss.Style
	green     lipgloss.Style
	yellow    lipgloss.Style
	red       lipgloss.Style
}

// NewRenderer returns a renderer writing styles for w.
func NewRenderer(w io.Writer, claudeDir string) *Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.ANSI)
	return &Renderer{
		claudeDir: claudeDir,
		dim:       r.NewStyle().Faint(true),
		green:     r.NewStyle().Foreground(lipgloss.Color("2")),
		yellow:    r.NewStyle().Foreground(lipgloss.Color("3")),
		red:       r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Render builds the status line for in.
func (r *Renderer) Render(in Input) string {
	var b strings.Builder
	b.WriteString(filepath.Base(in.ProjectDir))
	if rel := relativeDir(in.ProjectDir, in.CurrentDir); rel != "" {
		b.WriteString(" > ")
		b.WriteString(rel)
	}
	b.WriteString(r.usagePart(in))
	return b.String()
}

func (r *Renderer) usagePart(in Input) string {
	if in.SessionID == "" {
		return ""
	}
	files := store.NewUsageFiles(r.claudeDir, in.ProjectDir)
	f, err := store.ReadUsageFile(files.Path(in.SessionID))
	if err != nil {
		// Missing or mid-write; show the directory only.
		return ""
	}

	var b strings.Builder
	if _, acc := f.LatestModel(isHaiku); acc != nil {
		used := acc.Last.InputTokens + acc.Last.CacheReadInputTokens
		pct := int(math.Round(float64(used) / ContextLimit * 100))

		color := r.green
		switch {
		case pct > 80:
			color = r.red
		case pct > 60:
			color = r.yellow
		}
		b.WriteString(" ")
		b.WriteString(r.dim.Render("|"))
		b.WriteString(" ")
		b.WriteString(color.Render(fmt.Sprintf("%d%%", pct)))
		b.WriteString(" ")
		b.WriteString(r.dim.Render(fmt.Sprintf("(%.2fk/%dk)", float64(used)/1000, ContextLimit/1000)))
	}
	if f.TotalCost > 0 {
		b.WriteString(" ")
		b.WriteString(r.dim.Render(fmt.Sprintf("| $%.4f", f.TotalCost)))
	}
	return b.String()
}

func isHaiku(name string) bool {
	return strings.Contains(name, "haiku")
}

func relativeDir(base, target string) string {
	if base == target || base == "" || target == "" {
		return ""
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." {
		return ""
	}
	if strings.HasPrefix(rel, "..") {
		return rel
	}
	return "./" + rel
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
