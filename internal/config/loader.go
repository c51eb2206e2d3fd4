package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix         = "SIGNALBANK_"
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SIGNALBANK_SERVER_PORT, SIGNALBANK_MEMORY_MAX__HISTORY, ...)
//  2. YAML config file (~/.config/signalbank/config.yaml)
//  3. Hardcoded defaults
//
// Environment variables are prefixed with SIGNALBANK_. A single underscore
// separates the section from the field; a double underscore maps to an
// underscore inside the field name:
//
//	SIGNALBANK_SERVER_PORT              -> server.port
//	SIGNALBANK_MEMORY_MAX__HISTORY      -> memory.max_history
//	SIGNALBANK_LEARNING_LEARNING__RATE  -> learning.learning_rate
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used. A missing file is not an error; defaults apply.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "signalbank", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// transformEnvKey maps an environment variable name to a koanf key.
//
//	SIGNALBANK_MEMORY_MAX__HISTORY -> memory.max_history
func transformEnvKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	// Double underscore carries an underscore into the field name;
	// single underscore separates the section from the field.
	const marker = "\x00"
	lower = strings.ReplaceAll(lower, "__", marker)

	parts := strings.SplitN(lower, "_", 2)
	for i := range parts {
		parts[i] = strings.ReplaceAll(parts[i], marker, "_")
	}

	return strings.Join(parts, ".")
}

// EnsureConfigDir creates the signalbank config directory if it doesn't exist.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "signalbank")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// ExpandHome replaces a leading ~/ in path with the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
