// Package config loads tourwatch configuration from the platform-native
// backend, environment variables, and the platform secret store.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Notify   NotifyConfig
	Monitor  MonitorConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

type NotifyConfig struct {
	// WebhookURL receives notification events as JSON POSTs. Empty means
	// events are written to the log only.
	WebhookURL string
}

type MonitorConfig struct {
	Interval      string // Go duration, e.g. "12h"
	Workers       int
	SearchTimeout string // Go duration, e.g. "30s"
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Provider: ProviderConfig{
			BaseURL: "http://localhost:4700",
		},
		Monitor: MonitorConfig{
			Interval:      "12h",
			Workers:       4,
			SearchTimeout: "30s",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// IntervalDuration returns the parsed check interval.
func (m MonitorConfig) IntervalDuration() (time.Duration, error) {
	d, err := time.ParseDuration(m.Interval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid monitor.interval %q", m.Interval)
	}
	return d, nil
}

// SearchTimeoutDuration returns the parsed per-search timeout.
func (m MonitorConfig) SearchTimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(m.SearchTimeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid monitor.search_timeout %q", m.SearchTimeout)
	}
	return d, nil
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.tourwatch.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/tourwatch/config.json
// and secrets fall back to a file in the data directory.
//
// Environment variables (TOURWATCH_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		if key, err := kc.Get("tourwatch", "api_token"); err == nil && key != "" {
			cfg.Server.APIToken = key
		}
	}
	if cfg.Provider.APIKey == "" {
		if key, err := kc.Get("tourwatch", "provider_api_key"); err == nil && key != "" {
			cfg.Provider.APIKey = key
		}
	}

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. "+
			"Set it via environment variable TOURWATCH_API_TOKEN%s", secretHint("api_token"))
	}
	if cfg.Provider.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: provider API key. "+
			"Set it via environment variable TOURWATCH_PROVIDER_API_KEY%s", secretHint("provider_api_key"))
	}

	if _, err := cfg.Monitor.IntervalDuration(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Monitor.SearchTimeoutDuration(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
