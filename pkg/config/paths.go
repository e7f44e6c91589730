package config

import (
	"os"
	"path/filepath"
	"strings"
)

// UserConfigPath returns ~/.screenpilot/config.yaml, or "" when no home
// directory is known.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, configDirName, configFileName)
}

// ProjectConfigPath returns the config file in the working directory.
func ProjectConfigPath() string {
	return filepath.Join(".", configDirName, configFileName)
}

func expandHomeDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
