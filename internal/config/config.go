package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const appName = "sound-predict"

type Config struct {
	BaseURL          string      `json:"base_url"`
	LogLevel         string      `json:"log_level"`
	RecordingsDir    string      `json:"recordings_dir"`
	RequestTimeoutMs int         `json:"request_timeout_ms"` // 0 means no deadline
	Audio            AudioConfig `json:"audio"`
	CheckHealth      bool        `json:"check_health"`
}

type AudioConfig struct {
	DeviceID   string `json:"device_id"`
	SampleRate int    `json:"sample_rate"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		BaseURL:          "http://localhost:8000/",
		LogLevel:         "info",
		RecordingsDir:    RecordingsPath(),
		RequestTimeoutMs: 0,
		Audio: AudioConfig{
			DeviceID:   "",
			SampleRate: 16000, // the classifier resamples to 16 kHz anyway
		},
		CheckHealth: true,
	}
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path, falling back to defaults when the file
// does not exist, then applies environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Use defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the app cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.RequestTimeoutMs < 0 {
		return fmt.Errorf("request_timeout_ms must not be negative, got %d", c.RequestTimeoutMs)
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveTo(configPath())
}

func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("SOUND_PREDICT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("SOUND_PREDICT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SOUND_PREDICT_DEVICE"); v != "" {
		cfg.Audio.DeviceID = v
	}
	if v := os.Getenv("SOUND_PREDICT_RECORDINGS_DIR"); v != "" {
		cfg.RecordingsDir = v
	}
	if v := os.Getenv("SOUND_PREDICT_REQUEST_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SOUND_PREDICT_REQUEST_TIMEOUT_MS: %w", err)
		}
		cfg.RequestTimeoutMs = ms
	}
	return nil
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.json")
}

// RecordingsPath returns the platform-specific directory recordings are written to
func RecordingsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "recordings")
}
