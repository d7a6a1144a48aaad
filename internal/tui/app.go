// Package tui provides the interactive Bubble Tea viewer for cccost.
package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/theirongolddev/cccost/internal/cli"
	"github.com/theirongolddev/cccost/internal/model"
	"github.com/theirongolddev/cccost/internal/source"
	"github.com/theirongolddev/cccost/internal/store"
	"github.com/theirongolddev/cccost/internal/tui/theme"
)

// UsageLoadedMsg is sent when a usage file has been (re)read.
type UsageLoadedMsg struct {
	SessionID string
	Path      string
	Usage     *model.UsageFile
	Err       error
	At        time.Time
}

// FileChangedMsg is sent when the watcher sees a usage file change.
type FileChangedMsg struct {
	Path string
}

// WatchErrMsg reports a watcher failure. The viewer keeps the last data.
type WatchErrMsg struct {
	Err error
}

// errNoUsage is shown while the project has no usage file yet.
var errNoUsage = errors.New("no usage file yet")

// App is the live usage viewer.
type App struct {
	claudeDir string
	cwd       string
	pinned    string // session to show; "" follows the newest usage file

	sessionID string
	path      string
	usage     *model.UsageFile
	loadErr   error
	watchErr  error
	loadedAt  time.Time

	table  table.Model
	width  int
	height int

	watcher *fsnotify.Watcher
	events  chan tea.Msg
	now     func() time.Time
}

// NewApp returns a viewer for the usage files of cwd. The watcher is
// created by Start and released by Close.
func NewApp(claudeDir, cwd, sessionID string) App {
	cols := make([]table.Column, len(cli.UsageHeaders))
	for i, h := range cli.UsageHeaders {
		cols[i] = table.Column{Title: h, Width: columnWidth(i)}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(tableStyles())

	return App{
		claudeDir: claudeDir,
		cwd:       cwd,
		pinned:    sessionID,
		table:     t,
		events:    make(chan tea.Msg, 1),
		now:       time.Now,
	}
}

// Start creates the file watcher on the project directory.
func (a *App) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := source.ProjectDir(a.claudeDir, a.cwd)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	a.watcher = w
	return nil
}

// Close stops the watcher.
func (a *App) Close() error {
	if a.watcher == nil {
		return nil
	}
	return a.watcher.Close()
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{loadUsageCmd(a.claudeDir, a.cwd, a.pinned, a.now)}
	if a.watcher != nil {
		go forwardEvents(a.watcher, a.pinned, a.events)
		cmds = append(cmds, waitForEvent(a.events))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		h := msg.Height - 8
		if h < 3 {
			h = 3
		}
		a.table.SetHeight(h)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return a, tea.Quit
		case "r":
			return a, loadUsageCmd(a.claudeDir, a.cwd, a.pinned, a.now)
		}

	case UsageLoadedMsg:
		a.loadedAt = msg.At
		a.loadErr = msg.Err
		if msg.Err == nil {
			a.sessionID = msg.SessionID
			a.path = msg.Path
			a.usage = msg.Usage
			a.table.SetRows(toRows(cli.UsageRows(msg.Usage, msg.At)))
		}
		return a, nil

	case FileChangedMsg:
		return a, tea.Batch(
			loadUsageCmd(a.claudeDir, a.cwd, a.pinned, a.now),
			waitForEvent(a.events),
		)

	case WatchErrMsg:
		a.watchErr = msg.Err
		return a, waitForEvent(a.events)
	}

	var cmd tea.Cmd
	a.table, cmd = a.table.Update(msg)
	return a, cmd
}

// View implements tea.Model.
func (a App) View() string {
	t := theme.Active
	titleStyle := lipgloss.NewStyle().Foreground(t.Accent).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	costStyle := lipgloss.NewStyle().Foreground(t.Orange).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(t.Yellow)

	var b strings.Builder
	b.WriteString(titleStyle.Render("cccost"))
	b.WriteString(mutedStyle.Render("  " + source.ProjectName(a.cwd)))
	if a.sessionID != "" {
		b.WriteString(mutedStyle.Render("  session " + a.sessionID))
	}
	b.WriteString("\n\n")

	switch {
	case a.usage == nil && a.loadErr != nil:
		b.WriteString(warnStyle.Render("  " + a.loadErr.Error()))
		b.WriteString("\n")
	case a.usage == nil:
		b.WriteString(mutedStyle.Render("  loading..."))
		b.WriteString("\n")
	default:
		b.WriteString(costStyle.Render("  " + cli.FormatCostExact(a.usage.TotalCost)))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  across %s requests", cli.FormatNumber(a.usage.Requests))))
		b.WriteString("\n\n")
		b.WriteString(a.table.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(a.statusBar())
	return b.String()
}

func (a App) statusBar() string {
	t := theme.Active
	style := lipgloss.NewStyle().Foreground(t.TextMuted)

	left := " [r]eload  [q]uit"
	var right string
	switch {
	case a.watchErr != nil:
		right = lipgloss.NewStyle().Foreground(t.Red).Render("watch: " + a.watchErr.Error())
	case a.path != "":
		right = filepath.Base(a.path) + " " + cli.FormatAgo(a.loadedAt, a.now())
	}

	padding := a.width - lipgloss.Width(left) - lipgloss.Width(right) - 1
	if padding < 1 {
		padding = 1
	}
	return style.Render(left + strings.Repeat(" ", padding) + right)
}

func tableStyles() table.Styles {
	t := theme.Active
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(t.Border).
		BorderBottom(true).
		Foreground(t.Accent).
		Bold(true)
	s.Cell = s.Cell.Foreground(t.TextPrimary)
	s.Selected = s.Selected.
		Foreground(t.TextPrimary).
		Background(t.Selected).
		Bold(false)
	return s
}

func columnWidth(i int) int {
	if i == 0 {
		return 28
	}
	return 11
}

func toRows(rows [][]string) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		out[i] = table.Row(r)
	}
	return out
}

// loadUsageCmd reads the pinned session's usage file, or the newest one in
// the project directory.
func loadUsageCmd(claudeDir, cwd, pinned string, now func() time.Time) tea.Cmd {
	return func() tea.Msg {
		files := store.NewUsageFiles(claudeDir, cwd)
		sessionID := pinned
		if sessionID == "" {
			found, err := source.ScanProject(claudeDir, cwd)
			if err != nil {
				return UsageLoadedMsg{Err: err, At: now()}
			}
			if len(found) == 0 {
				return UsageLoadedMsg{Err: errNoUsage, At: now()}
			}
			sessionID = found[0].SessionID
		}

		f, err := files.Load(sessionID)
		return UsageLoadedMsg{
			SessionID: sessionID,
			Path:      files.Path(sessionID),
			Usage:     f,
			Err:       err,
			At:        now(),
		}
	}
}

// forwardEvents turns watcher events into viewer messages. Changes are
// coalesced: if a reload is already pending the event is dropped.
func forwardEvents(w *fsnotify.Watcher, pinned string, out chan<- tea.Msg) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !relevant(ev, pinned) {
				continue
			}
			select {
			case out <- FileChangedMsg{Path: ev.Name}:
			default:
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			select {
			case out <- WatchErrMsg{Err: err}:
			default:
			}
		}
	}
}

func relevant(ev fsnotify.Event, pinned string) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	if pinned != "" {
		return name == pinned+source.UsageSuffix
	}
	return strings.HasSuffix(name, source.UsageSuffix)
}

// waitForEvent blocks until the watcher goroutine delivers a message.
func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
