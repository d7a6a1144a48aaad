package tui

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/tui/theme"
)

// SetupValues are the fields edited by the setup form.
type SetupValues struct {
	ClaudeBin   string
	BaseURL     string
	History     bool
	Verbose     bool
	MonitorAddr string
	Theme       string
}

// SetupValuesFrom seeds the form from an existing config.
func SetupValuesFrom(cfg config.Config) SetupValues {
	return SetupValues{
		ClaudeBin:   cfg.General.ClaudeBin,
		BaseURL:     cfg.API.BaseURL,
		History:     cfg.History.Enabled,
		Verbose:     cfg.General.Verbose,
		MonitorAddr: cfg.Monitor.Addr,
		Theme:       theme.ByName(cfg.Appearance.Theme).Name,
	}
}

// Apply copies the edited values onto cfg.
func (v SetupValues) Apply(cfg *config.Config) {
	bin := strings.TrimSpace(v.ClaudeBin)
	if bin == "" {
		bin = "claude"
	}
	cfg.General.ClaudeBin = bin
	cfg.General.Verbose = v.Verbose
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(v.BaseURL), "/")
	cfg.History.Enabled = v.History
	cfg.Monitor.Addr = strings.TrimSpace(v.MonitorAddr)
	cfg.Appearance.Theme = theme.ByName(v.Theme).Name
}

// NewSetupForm builds the first-run form bound to v.
func NewSetupForm(v *SetupValues) *huh.Form {
	themeOpts := huh.NewOptions(theme.Names()...)

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to cccost").
				Description("cccost wraps claude and tracks what every request costs."),
			huh.NewInput().
				Title("Claude binary").
				Description("Name or path of the CLI to wrap.").
				Value(&v.ClaudeBin),
			huh.NewInput().
				Title("API base URL").
				Description("Leave blank for https://api.anthropic.com.").
				Validate(validateBaseURL).
				Value(&v.BaseURL),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Keep a request history?").
				Description("Every request is appended to a local SQLite ledger.").
				Value(&v.History),
			huh.NewConfirm().
				Title("Print a line per request?").
				Value(&v.Verbose),
			huh.NewInput().
				Title("Monitor address").
				Description("host:port for the live monitor, blank to disable.").
				Value(&v.MonitorAddr),
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&v.Theme),
		),
	)
}

func validateBaseURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must start with http:// or https://")
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}
