// Package summary prints the end-of-run recap for a wrapped session.
package summary

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/model"
)

// Source exposes the in-memory accounting state.
type Source interface {
	Models() []model.NamedAccumulator
	SessionID() string
}

// Session is acquired when the wrapped process starts and released on
// every exit path. Only the first End prints anything.
type Session struct {
	source    Source
	out       io.Writer
	usagePath func(sessionID string) string
	now       func() time.Time
	start     time.Time
	once      sync.Once
}

// Begin starts timing a run. usagePath may be nil.
func Begin(source Source, out io.Writer, usagePath func(string) string) *Session {
	return beginAt(source, out, usagePath, time.Now)
}

func beginAt(source Source, out io.Writer, usagePath func(string) string, now func() time.Time) *Session {
	return &Session{
		source:    source,
		out:       out,
		usagePath: usagePath,
		now:       now,
		start:     now(),
	}
}

// End prints the summary once. Later calls are no-ops.
func (s *Session) End() {
	s.once.Do(func() {
		defer func() {
			// A broken writer must not take the exit path down with it.
			_ = recover()
		}()
		_, _ = io.WriteString(s.out, s.Render())
	})
}

// Render formats the summary without printing it.
func (s *Session) Render() string {
	r := lipgloss.NewRenderer(s.out)
	var (
		title   = r.NewStyle().Foreground(cli.ColorAccent).Bold(true)
		muted   = r.NewStyle().Foreground(cli.ColorTextMuted)
		name    = r.NewStyle().Foreground(cli.ColorText).Bold(true)
		input   = r.NewStyle().Foreground(cli.ColorBlue)
		output  = r.NewStyle().Foreground(cli.ColorGreen)
		cache   = r.NewStyle().Foreground(cli.ColorYellow)
		costFmt = r.NewStyle().Foreground(cli.ColorOrange)
	)

	models := s.source.Models()
	var total float64
	for _, m := range models {
		total += m.Cost
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(title.Render("Session Summary"))
	b.WriteString("\n")
	b.WriteString(muted.Render(strings.Repeat("─", 40)))
	b.WriteString("\n")
	b.WriteString(muted.Render("Duration: " + cli.FormatElapsed(s.now().Sub(s.start))))
	b.WriteString("\n")
	b.WriteString(costFmt.Render("Total Cost: " + cli.FormatCostExact(total)))
	b.WriteString("\n")

	if sid := s.source.SessionID(); sid != "" && s.usagePath != nil {
		b.WriteString(muted.Render("Usage file: " + s.usagePath(sid)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, m := range models {
		b.WriteString(name.Render(m.Model + ":"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Requests: %d\n", m.Requests)
		fmt.Fprintf(&b, "  %s %s\n", input.Render("Input:"), cli.FormatNumber(m.InputTokens))
		fmt.Fprintf(&b, "  %s %s\n", output.Render("Output:"), cli.FormatNumber(m.OutputTokens))
		if m.CacheCreationInputTokens > 0 {
			fmt.Fprintf(&b, "  %s %s\n", cache.Render("Cache Creation:"), cli.FormatNumber(m.CacheCreationInputTokens))
		}
		if m.CacheReadInputTokens > 0 {
			fmt.Fprintf(&b, "  %s %s\n", cache.Render("Cache Read:"), cli.FormatNumber(m.CacheReadInputTokens))
		}
		if m.Cost > 0 {
			fmt.Fprintf(&b, "  %s %s\n", costFmt.Render("Cost:"), cli.FormatCostExact(m.Cost))
		}
		b.WriteString("\n")
	}
	return b.String()
}
