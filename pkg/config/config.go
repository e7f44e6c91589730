package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

const (
	configDirName  = ".screenpilot"
	configFileName = "config.yaml"
	envPrefix      = "SCREENPILOT_"
)

// Config is the root configuration.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Resolver ResolverConfig `yaml:"resolver"`
	Models   ModelConfig    `yaml:"models"`
	Display  DisplayConfig  `yaml:"display"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Journal  JournalConfig  `yaml:"journal"`
	Bus      BusConfig      `yaml:"bus"`
	Server   ServerConfig   `yaml:"server"`
}

// EngineConfig holds command pacing and gesture timings.
type EngineConfig struct {
	CommandDelay      time.Duration `yaml:"command_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	GestureTimeout    time.Duration `yaml:"gesture_timeout"`
	TapDuration       time.Duration `yaml:"tap_duration"`
	LongPressDuration time.Duration `yaml:"long_press_duration"`
	ScrollDuration    time.Duration `yaml:"scroll_duration"`
	// ScrollStart and ScrollEnd are axis fractions for simple scrolls.
	ScrollStart float64 `yaml:"scroll_start"`
	ScrollEnd   float64 `yaml:"scroll_end"`
}

// ResolverConfig tunes view tree refreshes.
type ResolverConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// ModelConfig names the models selected by the reasoning markers.
type ModelConfig struct {
	HighReasoning string `yaml:"high_reasoning"`
	LowReasoning  string `yaml:"low_reasoning"`
	// Initial is the model active before any marker is seen.
	Initial string `yaml:"initial"`
}

// DisplayConfig sizes the simulated display when a dump does not.
type DisplayConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoggingConfig configures the session and error logs.
type LoggingConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// TracingConfig controls span export.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Output is a file path; empty means stderr.
	Output string `yaml:"output"`
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// BusConfig configures status fan-out. An empty URL keeps it in-process.
type BusConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return configDirName
	}
	return filepath.Join(home, configDirName)
}

func defaultNATSURL() string {
	if v := strings.TrimSpace(os.Getenv("NATS_URL")); v != "" {
		return v
	}
	return ""
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Engine: EngineConfig{
			CommandDelay:      800 * time.Millisecond,
			SettleDelay:       300 * time.Millisecond,
			GestureTimeout:    5 * time.Second,
			TapDuration:       100 * time.Millisecond,
			LongPressDuration: 1000 * time.Millisecond,
			ScrollDuration:    500 * time.Millisecond,
			ScrollStart:       0.3,
			ScrollEnd:         0.7,
		},
		Resolver: ResolverConfig{
			RefreshInterval: 250 * time.Millisecond,
		},
		Models: ModelConfig{
			HighReasoning: "reasoning-high",
			LowReasoning:  "reasoning-low",
			Initial:       "reasoning-low",
		},
		Display: DisplayConfig{
			Width:  1080,
			Height: 2400,
		},
		Logging: LoggingConfig{
			Dir:        filepath.Join(dataDir, "logs"),
			Level:      "info",
			MaxSizeMB:  20,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "journal.db"),
		},
		Bus: BusConfig{
			URL:           defaultNATSURL(),
			SubjectPrefix: "screenpilot",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// Load loads configuration with the following precedence, lowest first:
// defaults, ~/.screenpilot/config.yaml, ./.screenpilot/config.yaml, each of
// extraPaths in order, then SCREENPILOT_* environment variables.
func Load(extraPaths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{UserConfigPath(), ProjectConfigPath()} {
		if path == "" {
			continue
		}
		if err := loadAndMerge(cfg, path); err != nil && !os.IsNotExist(err) {
			return nil, wrapLoadError(err, path)
		}
	}

	for _, path := range extraPaths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := loadAndMerge(cfg, expandHomeDir(path)); err != nil {
			return nil, wrapLoadError(err, path)
		}
	}

	applyEnvOverrides(cfg)
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads defaults, the given file and environment overrides.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, wrapLoadError(err, path)
	}
	applyEnvOverrides(cfg)
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func wrapLoadError(err error, path string) error {
	if apperrors.IsCode(err, apperrors.ErrCodeConfigParse) {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "loading config").WithContext("path", path)
	}
	return apperrors.Wrap(err, apperrors.ErrCodeConfigLoad, "loading config").WithContext("path", path)
}

// applyEnvOverrides applies SCREENPILOT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	envDuration(envPrefix+"COMMAND_DELAY", &cfg.Engine.CommandDelay)
	envDuration(envPrefix+"SETTLE_DELAY", &cfg.Engine.SettleDelay)
	envDuration(envPrefix+"GESTURE_TIMEOUT", &cfg.Engine.GestureTimeout)
	envDuration(envPrefix+"REFRESH_INTERVAL", &cfg.Resolver.RefreshInterval)

	if v := os.Getenv(envPrefix + "MODEL_HIGH"); v != "" {
		cfg.Models.HighReasoning = v
	}
	if v := os.Getenv(envPrefix + "MODEL_LOW"); v != "" {
		cfg.Models.LowReasoning = v
	}
	if v := os.Getenv(envPrefix + "LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(envPrefix + "JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if val, ok := envBool(envPrefix + "JOURNAL_ENABLED"); ok {
		cfg.Journal.Enabled = val
	}
	if val, ok := envBool(envPrefix + "TRACING"); ok {
		cfg.Tracing.Enabled = val
	}
	if v := os.Getenv(envPrefix + "NATS_URL"); v != "" {
		cfg.Bus.URL = v
	}
	if v := os.Getenv(envPrefix + "SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	envInt(envPrefix+"DISPLAY_WIDTH", &cfg.Display.Width)
	envInt(envPrefix+"DISPLAY_HEIGHT", &cfg.Display.Height)
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func envDuration(key string, dst *time.Duration) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func envInt(key string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	if v, err := strconv.Atoi(raw); err == nil {
		*dst = v
	}
}

func (c *Config) expandPaths() {
	c.Logging.Dir = expandHomeDir(c.Logging.Dir)
	c.Journal.Path = expandHomeDir(c.Journal.Path)
	c.Tracing.Output = expandHomeDir(c.Tracing.Output)
}

// Validate checks invariants the rest of the program relies on.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return apperrors.Newf(apperrors.ErrCodeConfigInvalid, format, args...).WithContext("field", field)
	}

	if c.Engine.CommandDelay < 0 {
		return invalid("engine.command_delay", "command delay must not be negative")
	}
	if c.Engine.SettleDelay < 0 {
		return invalid("engine.settle_delay", "settle delay must not be negative")
	}
	if c.Engine.GestureTimeout <= 0 {
		return invalid("engine.gesture_timeout", "gesture timeout must be positive")
	}
	if c.Engine.ScrollStart <= 0 || c.Engine.ScrollEnd >= 1 || c.Engine.ScrollStart >= c.Engine.ScrollEnd {
		return invalid("engine.scroll_start", "scroll fractions must satisfy 0 < start < end < 1, got %.2f..%.2f",
			c.Engine.ScrollStart, c.Engine.ScrollEnd)
	}
	if c.Resolver.RefreshInterval < 0 {
		return invalid("resolver.refresh_interval", "refresh interval must not be negative")
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return invalid("display", "display size must be positive, got %dx%d", c.Display.Width, c.Display.Height)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level", "unknown log level %q", c.Logging.Level)
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.Path) == "" {
		return invalid("journal.path", "journal path is required when the journal is enabled")
	}
	if strings.TrimSpace(c.Bus.SubjectPrefix) == "" {
		return invalid("bus.subject_prefix", "subject prefix must not be empty")
	}
	if strings.ContainsAny(c.Bus.SubjectPrefix, " *>") {
		return invalid("bus.subject_prefix", "subject prefix %q contains wildcard or space", c.Bus.SubjectPrefix)
	}
	return nil
}
