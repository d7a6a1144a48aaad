package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/theirongolddev/cccost/internal/model"
)

// VerboseSink prints one line per accounted request.
type VerboseSink struct {
	mu    sync.Mutex
	w     io.Writer
	tag   lipgloss.Style
	model lipgloss.Style
	cost  lipgloss.Style
	muted lipgloss.Style
}

// NewVerboseSink returns a sink writing to w, colored when w is a terminal.
func NewVerboseSink(w io.Writer) *VerboseSink {
	r := lipgloss.NewRenderer(w)
	return &VerboseSink{
		w:     w,
		tag:   r.NewStyle().Foreground(ColorAccent).Bold(true),
		model: r.NewStyle().Foreground(ColorBlue),
		cost:  r.NewStyle().Foreground(ColorGreen),
		muted: r.NewStyle().Foreground(ColorTextMuted),
	}
}

// Observe implements pipeline.Sink.
func (s *VerboseSink) Observe(obs model.Observation) {
	line := s.Format(obs)

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// Format renders a single request line: the request itself, then the
// model's running totals.
func (s *VerboseSink) Format(obs model.Observation) string {
	var b strings.Builder
	b.WriteString(s.tag.Render("[cccost]"))
	b.WriteByte(' ')
	b.WriteString(s.model.Render(obs.Model))
	b.WriteString(s.muted.Render(" | "))
	writeCounts(&b, obs.Usage)
	b.WriteByte(' ')
	b.WriteString(s.cost.Render(fmt.Sprintf("$%.6f", obs.Cost)))

	b.WriteString(s.muted.Render(" | model total: "))
	writeCounts(&b, obs.ModelUsage)
	b.WriteByte(' ')
	b.WriteString(s.cost.Render(FormatCostExact(obs.ModelCost)))
	b.WriteString(s.muted.Render(fmt.Sprintf(" requests: %s (session: %s)",
		FormatNumber(obs.ModelRequests), FormatCostExact(obs.TotalCost))))
	return b.String()
}

func writeCounts(b *strings.Builder, u model.UsageRecord) {
	fmt.Fprintf(b, "in: %s out: %s", FormatNumber(u.InputTokens), FormatNumber(u.OutputTokens))
	if u.CacheCreationInputTokens > 0 {
		fmt.Fprintf(b, " cache_w: %s", FormatNumber(u.CacheCreationInputTokens))
	}
	if u.CacheReadInputTokens > 0 {
		fmt.Fprintf(b, " cache_r: %s", FormatNumber(u.CacheReadInputTokens))
	}
}
