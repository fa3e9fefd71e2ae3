package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
server:
  port: "9090"

panchangam_api:
  url: "http://localhost:8000"
  timeout: 3s
`

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, "dev.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	dir := t.TempDir()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	return dir
}

func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		saved, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, saved)
			}
		})
	}
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL", "CACHE_BACKEND")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.PanchangamAPIURL != "http://localhost:8000" {
		t.Errorf("PanchangamAPIURL = %q", cfg.PanchangamAPIURL)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory default", cfg.CacheBackend)
	}
	if cfg.DefaultLatitude != 13.0827 || cfg.DefaultLongitude != 80.2707 {
		t.Errorf("default coordinates = %v/%v, want the Chennai floor", cfg.DefaultLatitude, cfg.DefaultLongitude)
	}
	if cfg.DefaultTimezone != "Asia/Kolkata" {
		t.Errorf("DefaultTimezone = %q", cfg.DefaultTimezone)
	}
	if cfg.StatusRefreshInterval != time.Minute {
		t.Errorf("StatusRefreshInterval = %v, want 1m default", cfg.StatusRefreshInterval)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts = %d, want 3", cfg.RetryAttempts)
	}
	if cfg.DeviceFixMaxAge != 5*time.Minute {
		t.Errorf("DeviceFixMaxAge = %v, want 5m default", cfg.DeviceFixMaxAge)
	}
	if cfg.PreferencePath != filepath.Join("data", "preference.db") {
		t.Errorf("PreferencePath = %q", cfg.PreferencePath)
	}
	if cfg.RequestTimeout <= cfg.PanchangamAPITimeout {
		t.Errorf("RequestTimeout %v must exceed upstream timeout %v", cfg.RequestTimeout, cfg.PanchangamAPITimeout)
	}
}

func TestLoadFailsWithoutUpstreamURL(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, "server:\n  port: \"8080\"\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "panchangam_api.url") {
		t.Errorf("Load error = %v, want missing upstream URL error", err)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL", "CACHE_BACKEND")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML)
	os.Setenv("PANCHANGAM_API_URL", "http://upstream:9000")
	t.Cleanup(func() { os.Unsetenv("PANCHANGAM_API_URL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PanchangamAPIURL != "http://upstream:9000" {
		t.Errorf("PanchangamAPIURL = %q, want env override", cfg.PanchangamAPIURL)
	}
}

func TestLoadRejectsUnknownCacheBackend(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL", "CACHE_BACKEND")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML+"\ncache:\n  backend: redis\n")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "cache.backend") {
		t.Errorf("Load error = %v, want cache backend error", err)
	}
}

func TestLoadRejectsOutOfRangeDefaultCoordinates(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL", "CACHE_BACKEND")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML+`
location:
  default:
    latitude: 120
    longitude: 80
    timezone: Asia/Kolkata
`)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "WGS84") {
		t.Errorf("Load error = %v, want WGS84 range error", err)
	}
}

func TestLoadRejectsUnknownDefaultTimezone(t *testing.T) {
	unsetForTest(t, "ENV_NAME", "PANCHANGAM_API_URL", "CACHE_BACKEND")
	dir := chdirTemp(t)
	writeConfigFile(t, dir, minimalYAML+`
location:
  default:
    latitude: 13.0827
    longitude: 80.2707
    timezone: Mars/Olympus
`)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "timezone") {
		t.Errorf("Load error = %v, want timezone error", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	unsetForTest(t, "PANCHANGAM_API_URL")
	os.Setenv("ENV_NAME", "nonexistent")
	t.Cleanup(func() { os.Unsetenv("ENV_NAME") })
	chdirTemp(t)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Load error = %v, want file-not-found error", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		def   time.Duration
		want  time.Duration
	}{
		{"5s", time.Second, 5 * time.Second},
		{"", time.Second, time.Second},
		{"garbage", time.Second, time.Second},
		{"-3s", time.Second, time.Second},
		{"1m30s", time.Second, 90 * time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.input, tt.def); got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
