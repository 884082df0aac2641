package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalConfigYAML = `server:
  port: "9090"
school:
  timezone: America/Toronto
  start_hour: 7
  latitude: 44.569
  longitude: -80.98
`

// writeConfigFile writes content as config/dev.yaml under dir.
func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	configDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

// chdirTemp moves into a fresh temp dir holding config/dev.yaml with the
// given content and restores the working directory on cleanup.
func chdirTemp(t *testing.T, content string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	writeConfigFile(t, dir, content)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
}

func TestLoad_AppliesDefaults(t *testing.T) {
	chdirTemp(t, minimalConfigYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
	if cfg.Timezone != "America/Toronto" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.SchoolStartHour != 7 {
		t.Errorf("SchoolStartHour = %d, want 7", cfg.SchoolStartHour)
	}
	if cfg.WeatherArchiveURL != "https://archive-api.open-meteo.com/v1/archive" {
		t.Errorf("WeatherArchiveURL = %q", cfg.WeatherArchiveURL)
	}
	if cfg.AlertFeedBaseURL != "https://dd.weather.gc.ca" {
		t.Errorf("AlertFeedBaseURL = %q", cfg.AlertFeedBaseURL)
	}
	if cfg.AlertBufferDegrees != 0.05 {
		t.Errorf("AlertBufferDegrees = %v, want 0.05", cfg.AlertBufferDegrees)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Errorf("rate limit = %d/%d, want 50/100", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.ModelPath != filepath.Join("data", "model.json") {
		t.Errorf("ModelPath = %q", cfg.ModelPath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t, minimalConfigYAML)
	t.Setenv("PORT", "3000")
	t.Setenv("CACHE_BACKEND", "Memcached")
	t.Setenv("MEMCACHED_ADDRS", "cache-a:11211,cache-b:11211")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Errorf("ServerPort = %q, want 3000 from env", cfg.ServerPort)
	}
	if cfg.CacheBackend != "memcached" {
		t.Errorf("CacheBackend = %q, want memcached (lowercased)", cfg.CacheBackend)
	}
	if cfg.MemcachedAddrs != "cache-a:11211,cache-b:11211" {
		t.Errorf("MemcachedAddrs = %q", cfg.MemcachedAddrs)
	}
}

func TestLoad_ConfigFileNotFound(t *testing.T) {
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing config file, got nil")
	}
	if cfg != nil {
		t.Fatalf("Load() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load() error = %v, want message about config file not found", err)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	chdirTemp(t, "school:\n  timezone: Mars/Olympus\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for bad timezone, got nil")
	}
}

func TestLoad_InvalidStartHour(t *testing.T) {
	chdirTemp(t, "school:\n  start_hour: 24\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for start_hour 24, got nil")
	}
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	chdirTemp(t, "cache:\n  backend: redis\n")

	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for unsupported cache backend, got nil")
	}
}

func TestLoad_BadDurationFallsBackToDefault(t *testing.T) {
	chdirTemp(t, minimalConfigYAML+`weather_api:
  timeout: "not-a-duration"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WeatherAPITimeout != 10*time.Second {
		t.Errorf("WeatherAPITimeout = %v, want 10s default", cfg.WeatherAPITimeout)
	}
}

func TestLoad_RequestTimeoutCoversUpstreams(t *testing.T) {
	chdirTemp(t, minimalConfigYAML+`request:
  timeout: "5s"
weather_api:
  timeout: "10s"
alert_feed:
  timeout: "10s"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 20*time.Second {
		t.Errorf("RequestTimeout = %v, want widened to 20s", cfg.RequestTimeout)
	}
}
