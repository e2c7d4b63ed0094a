// Package config loads host configuration for the bridge: content resolver
// inputs and channel tuning. The file format is line-oriented,
// "optionName value" with [section] headers, # comments, and a warnings
// list for unknown options so a typo never aborts startup.
package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the parsed host configuration.
type Config struct {
	// Content configures the content resolver inputs.
	Content ContentConfig
	// Channel configures runtime behavior of the bridge channel.
	Channel ChannelConfig
	// Global holds options outside any section, for host embedders that
	// want to piggyback their own settings on the same file.
	Global map[string]string
	// Warnings collects non-fatal issues found during loading.
	Warnings []string
}

// ContentConfig mirrors the three content resolver inputs.
type ContentConfig struct {
	// ProductionRoot is the directory expected to contain the entry
	// document.
	ProductionRoot string
	// DevDocument is a development document file path.
	DevDocument string
	// DevInlineFile names a file whose contents become the inline
	// development content. Indirection through a file keeps multi-line
	// documents out of the line-oriented config format.
	DevInlineFile string
}

// ChannelConfig tunes the transport runtime.
type ChannelConfig struct {
	// SyncTimeoutSeconds bounds synchronous event loop operations.
	// Zero keeps the transport default.
	SyncTimeoutSeconds int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// NewConfig returns an empty configuration with defaults applied.
func NewConfig() *Config {
	return &Config{
		Channel: ChannelConfig{LogLevel: "info"},
		Global:  make(map[string]string),
	}
}

// GetConfigPath resolves the config file location: the HOSTBRIDGE_CONFIG
// environment variable when set, otherwise ~/.hostbridge/config.
func GetConfigPath() (string, error) {
	if path := os.Getenv("HOSTBRIDGE_CONFIG"); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".hostbridge", "config"), nil
}

// Load reads configuration from the default path. A missing file yields an
// empty config, not an error.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return LoadFromPath(path)
}

// LoadFromPath reads configuration from path. Symlinked config files are
// rejected so the loader cannot be pointed at sensitive files by a planted
// link.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader parses configuration from r.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := NewConfig()
	scanner := bufio.NewScanner(r)

	section := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.Trim(line, "[]")
			switch section {
			case "content", "channel":
			default:
				cfg.addWarning("unknown section %q", section)
			}
			continue
		}

		parts := strings.SplitN(line, " ", 2)
		name := parts[0]
		var value string
		if len(parts) > 1 {
			value = strings.TrimSpace(parts[1])
		}

		switch section {
		case "content":
			cfg.parseContentOption(name, value)
		case "channel":
			cfg.parseChannelOption(name, value)
		case "":
			cfg.Global[name] = value
		default:
			// Options under an unknown section are preserved as globals
			// so nothing is silently dropped.
			cfg.Global[section+"."+name] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func (c *Config) parseContentOption(name, value string) {
	switch name {
	case "production-root":
		c.Content.ProductionRoot = value
	case "dev-document":
		c.Content.DevDocument = value
	case "dev-inline-file":
		c.Content.DevInlineFile = value
	default:
		c.addWarning("unknown content option %q", name)
	}
}

func (c *Config) parseChannelOption(name, value string) {
	switch name {
	case "sync-timeout":
		seconds, err := strconv.Atoi(value)
		if err != nil || seconds < 0 {
			c.addWarning("invalid sync-timeout %q", value)
			return
		}
		c.Channel.SyncTimeoutSeconds = seconds
	case "log-level":
		switch value {
		case "debug", "info", "warn", "error":
			c.Channel.LogLevel = value
		default:
			c.addWarning("invalid log-level %q", value)
		}
	default:
		c.addWarning("unknown channel option %q", name)
	}
}

func (c *Config) addWarning(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Channel.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
