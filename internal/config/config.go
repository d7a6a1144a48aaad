package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultBaseURL is the API origin tracked when nothing overrides it.
const DefaultBaseURL = "https://api.anthropic.com"

// Config holds all cccost configuration.
type Config struct {
	General    GeneralConfig                   `toml:"general"`
	API        APIConfig                       `toml:"api"`
	History    HistoryConfig                   `toml:"history"`
	Monitor    MonitorConfig                   `toml:"monitor"`
	Appearance AppearanceConfig                `toml:"appearance"`
	Pricing    map[string]ModelPricingOverride `toml:"pricing,omitempty"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	ClaudeBin string `toml:"claude_bin"`
	ClaudeDir string `toml:"claude_dir,omitempty"`
	Verbose   bool   `toml:"verbose"`

	// ClaudeDirOverride comes from --claude-dir and is never saved.
	ClaudeDirOverride string `toml:"-"`
}

// APIConfig selects which upstream is proxied and tracked.
type APIConfig struct {
	BaseURL string `toml:"base_url,omitempty"`
}

// HistoryConfig controls the sqlite request ledger.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// MonitorConfig controls the optional local monitor endpoint.
type MonitorConfig struct {
	Addr      string  `toml:"addr,omitempty"`
	RateLimit float64 `toml:"rate_limit"`
}

// AppearanceConfig holds terminal UI preferences.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// ModelPricingOverride replaces individual rates of a pricing row.
// Keys in Config.Pricing are model-name fragments ("opus", "sonnet", ...).
type ModelPricingOverride struct {
	InputPerMTok      *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok     *float64 `toml:"output_per_mtok,omitempty"`
	CacheWritePerMTok *float64 `toml:"cache_write_per_mtok,omitempty"`
	CacheReadPerMTok  *float64 `toml:"cache_read_per_mtok,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			ClaudeBin: "claude",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Monitor: MonitorConfig{
			RateLimit: 20,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cccost")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cccost")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory used for the history ledger.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "cccost")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "cccost")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads the config at path, returning defaults if it doesn't exist.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's own config file
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := validatePricing(cfg.Pricing); err != nil {
		return DefaultConfig(), fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes the config to path, creating its directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // path is the user's own config file
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// BaseURL returns the tracked API origin from env var or config, in that order.
func BaseURL(cfg Config) string {
	if u := strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL")); u != "" {
		return u
	}
	if cfg.API.BaseURL != "" {
		return cfg.API.BaseURL
	}
	return DefaultBaseURL
}

// Verbose reports whether per-request console lines are enabled.
func Verbose(cfg Config) bool {
	return envBool("CCCOST_VERBOSE") || cfg.General.Verbose
}

// Debug reports whether debug logging was requested through the environment.
func Debug() bool {
	return envBool("CCCOST_DEBUG")
}

// ClaudeDir returns the wrapped client's state root. The --claude-dir
// override wins, then CLAUDE_CONFIG_DIR, then the config file; the default
// is ~/.claude.
func ClaudeDir(cfg Config) string {
	if cfg.General.ClaudeDirOverride != "" {
		return expandHome(cfg.General.ClaudeDirOverride)
	}
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return dir
	}
	if cfg.General.ClaudeDir != "" {
		return expandHome(cfg.General.ClaudeDir)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude")
}

// HistoryPath returns the sqlite ledger location.
func HistoryPath(cfg Config) string {
	if cfg.History.Path != "" {
		return expandHome(cfg.History.Path)
	}
	return filepath.Join(DataDir(), "history.db")
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
