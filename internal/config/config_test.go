package config

import (
	"strings"
	"testing"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain struct {
	values map[string]string
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.values[service+"/"+account], nil
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend struct {
	data map[string]any
}

func (b mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b mapBackend) SetString(key, val string) error { b.data[key] = val; return nil }
func (b mapBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b mapBackend) Delete(key string) error { delete(b.data, key); return nil }

func secretsKC() mockKeychain {
	return mockKeychain{values: map[string]string{
		"tourwatch/api_token":        "kc-token",
		"tourwatch/provider_api_key": "kc-key",
	}}
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{data: map[string]any{}}, secretsKC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Provider.BaseURL != "http://localhost:4700" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Monitor.Interval != "12h" || cfg.Monitor.Workers != 4 || cfg.Monitor.SearchTimeout != "30s" {
		t.Errorf("Monitor = %+v", cfg.Monitor)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestBackendValues(t *testing.T) {
	b := mapBackend{data: map[string]any{
		"server.port":        5000,
		"provider.base_url":  "http://agg.internal:9000",
		"monitor.interval":   "6h",
		"monitor.workers":    8,
		"notify.webhook_url": "http://hooks.internal/tourwatch",
	}}

	cfg, err := loadWith(b, secretsKC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Provider.BaseURL != "http://agg.internal:9000" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Monitor.Interval != "6h" || cfg.Monitor.Workers != 8 {
		t.Errorf("Monitor = %+v", cfg.Monitor)
	}
	if cfg.Notify.WebhookURL != "http://hooks.internal/tourwatch" {
		t.Errorf("Notify.WebhookURL = %q", cfg.Notify.WebhookURL)
	}
}

func TestEnvOverride(t *testing.T) {
	b := mapBackend{data: map[string]any{
		"monitor.interval": "6h",
	}}
	t.Setenv("TOURWATCH_MONITOR_INTERVAL", "1h")
	t.Setenv("TOURWATCH_API_TOKEN", "env-token")

	cfg, err := loadWith(b, secretsKC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Monitor.Interval != "1h" {
		t.Errorf("Monitor.Interval = %q, want env override 1h", cfg.Monitor.Interval)
	}
	if cfg.Server.APIToken != "env-token" {
		t.Errorf("Server.APIToken = %q, want env-token", cfg.Server.APIToken)
	}
}

func TestKeychainFallback(t *testing.T) {
	cfg, err := loadWith(mapBackend{data: map[string]any{}}, secretsKC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.APIToken != "kc-token" {
		t.Errorf("Server.APIToken = %q, want kc-token", cfg.Server.APIToken)
	}
	if cfg.Provider.APIKey != "kc-key" {
		t.Errorf("Provider.APIKey = %q, want kc-key", cfg.Provider.APIKey)
	}
}

func TestMissingRequiredSecrets(t *testing.T) {
	_, err := loadWith(mapBackend{data: map[string]any{}}, mockKeychain{})
	if err == nil {
		t.Fatal("expected error for missing secrets, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q, want it to mention missing required config", err)
	}
}

func TestInvalidDuration(t *testing.T) {
	b := mapBackend{data: map[string]any{
		"monitor.interval": "often",
	}}
	_, err := loadWith(b, secretsKC())
	if err == nil || !strings.Contains(err.Error(), "monitor.interval") {
		t.Errorf("err = %v, want invalid monitor.interval error", err)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg, err := loadWith(mapBackend{data: map[string]any{}}, secretsKC())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, info := range ShowAll(cfg) {
		if info.Key == "server.api_token" || info.Key == "provider.api_key" {
			t.Errorf("secret key %s exposed by ShowAll", info.Key)
		}
	}
}
