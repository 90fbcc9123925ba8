package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the console's connection and runtime settings.
type Config struct {
	APIURL      string
	APIPrefix   string
	WSURL       string
	PollSeconds int
	Namespace   string
	StateDir    string
}

const (
	defaultConfigPath  = "~/.config/vapor-console/config.toml"
	defaultStateDir    = "~/.local/state/vapor-console"
	defaultAPIURL      = "http://127.0.0.1:8080"
	defaultAPIPrefix   = "/api/v1"
	defaultPollSeconds = 10
)

// Load locates and parses the console config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIURL      string `toml:"api_url"`
		APIPrefix   string `toml:"api_prefix"`
		WSURL       string `toml:"ws_url"`
		PollSeconds int    `toml:"poll_seconds"`
		Namespace   string `toml:"namespace"`
		StateDir    string `toml:"state_dir"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(raw.APIPrefix); v != "" {
		cfg.APIPrefix = v
	}
	cfg.WSURL = strings.TrimSpace(raw.WSURL)
	if raw.PollSeconds > 0 {
		cfg.PollSeconds = raw.PollSeconds
	}
	cfg.Namespace = strings.TrimSpace(raw.Namespace)
	if v := strings.TrimSpace(raw.StateDir); v != "" {
		cfg.StateDir = mustExpand(v)
	}
	if cfg.WSURL != "" {
		if _, err := url.Parse(cfg.WSURL); err != nil {
			return Config{}, fmt.Errorf("parse ws_url: %w", err)
		}
	}

	return cfg, nil
}

func defaults() Config {
	return Config{
		APIURL:      defaultAPIURL,
		APIPrefix:   defaultAPIPrefix,
		PollSeconds: defaultPollSeconds,
		StateDir:    mustExpand(defaultStateDir),
	}
}

// PollInterval is the refresh cadence for the collections.
func (c Config) PollInterval() time.Duration {
	if c.PollSeconds <= 0 {
		return defaultPollSeconds * time.Second
	}
	return time.Duration(c.PollSeconds) * time.Second
}

// LogPath returns the file the console logs to.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.StateDir) == "" {
		return mustExpand(defaultStateDir + "/console.log")
	}
	return filepath.Join(c.StateDir, "console.log")
}

// DefaultLogPath is LogPath for the default state directory.
func DefaultLogPath() string {
	return Config{}.LogPath()
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
