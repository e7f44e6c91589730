package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/odvcencio/screenpilot/pkg/errors"
)

// loadAndMerge loads a YAML file and merges it into the config. A missing
// file is reported with the raw os error so callers can skip it.
func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML")
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigParse, "parsing YAML")
	}

	mergeConfigs(cfg, &override, raw)
	return nil
}

// mergeConfigs merges override into base. Zero values leave base untouched,
// except booleans, which apply whenever the key is present in raw.
func mergeConfigs(base, override *Config, raw map[string]any) {
	if override == nil {
		return
	}

	mergeDuration(&base.Engine.CommandDelay, override.Engine.CommandDelay, raw, "engine", "command_delay")
	mergeDuration(&base.Engine.SettleDelay, override.Engine.SettleDelay, raw, "engine", "settle_delay")
	mergeDuration(&base.Engine.GestureTimeout, override.Engine.GestureTimeout, raw, "engine", "gesture_timeout")
	mergeDuration(&base.Engine.TapDuration, override.Engine.TapDuration, raw, "engine", "tap_duration")
	mergeDuration(&base.Engine.LongPressDuration, override.Engine.LongPressDuration, raw, "engine", "long_press_duration")
	mergeDuration(&base.Engine.ScrollDuration, override.Engine.ScrollDuration, raw, "engine", "scroll_duration")
	if override.Engine.ScrollStart != 0 {
		base.Engine.ScrollStart = override.Engine.ScrollStart
	}
	if override.Engine.ScrollEnd != 0 {
		base.Engine.ScrollEnd = override.Engine.ScrollEnd
	}

	mergeDuration(&base.Resolver.RefreshInterval, override.Resolver.RefreshInterval, raw, "resolver", "refresh_interval")

	if override.Models.HighReasoning != "" {
		base.Models.HighReasoning = override.Models.HighReasoning
	}
	if override.Models.LowReasoning != "" {
		base.Models.LowReasoning = override.Models.LowReasoning
	}
	if override.Models.Initial != "" {
		base.Models.Initial = override.Models.Initial
	}

	if override.Display.Width != 0 {
		base.Display.Width = override.Display.Width
	}
	if override.Display.Height != 0 {
		base.Display.Height = override.Display.Height
	}

	if override.Logging.Dir != "" {
		base.Logging.Dir = override.Logging.Dir
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.MaxSizeMB != 0 {
		base.Logging.MaxSizeMB = override.Logging.MaxSizeMB
	}
	if override.Logging.MaxBackups != 0 {
		base.Logging.MaxBackups = override.Logging.MaxBackups
	}
	if override.Logging.MaxAgeDays != 0 {
		base.Logging.MaxAgeDays = override.Logging.MaxAgeDays
	}

	if boolFieldSet(raw, "tracing", "enabled") {
		base.Tracing.Enabled = override.Tracing.Enabled
	}
	if override.Tracing.Output != "" {
		base.Tracing.Output = override.Tracing.Output
	}

	if boolFieldSet(raw, "journal", "enabled") {
		base.Journal.Enabled = override.Journal.Enabled
	}
	if override.Journal.Path != "" {
		base.Journal.Path = override.Journal.Path
	}

	if override.Bus.URL != "" {
		base.Bus.URL = override.Bus.URL
	}
	if override.Bus.SubjectPrefix != "" {
		base.Bus.SubjectPrefix = override.Bus.SubjectPrefix
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
}

// mergeDuration applies a duration when the key is present, so an explicit
// zero (for example command_delay: 0s) overrides a non-zero default.
func mergeDuration(dst *time.Duration, v time.Duration, raw map[string]any, path ...string) {
	if fieldSet(raw, path...) {
		*dst = v
	}
}

func boolFieldSet(raw map[string]any, path ...string) bool {
	return fieldSet(raw, path...)
}

func fieldSet(raw map[string]any, path ...string) bool {
	if raw == nil || len(path) == 0 {
		return false
	}
	current := raw
	for i, key := range path {
		val, ok := current[key]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		next, ok := val.(map[string]any)
		if !ok {
			return false
		}
		current = next
	}
	return false
}
