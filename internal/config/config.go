package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	PanchangamAPIURL     string
	PanchangamAPITimeout time.Duration
	RetryAttempts        int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	ReverseGeocodeURL     string
	ReverseGeocodeTimeout time.Duration
	IPGeolocateURL        string
	IPGeolocateTimeout    time.Duration
	DeviceFixMaxAge       time.Duration

	DefaultLatitude  float64
	DefaultLongitude float64
	DefaultTimezone  string
	DefaultLabel     string

	PreferencePath string

	StatusRefreshInterval time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	PanchangamAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"panchangam_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Location struct {
		ReverseGeocodeURL     string `yaml:"reverse_geocode_url"`
		ReverseGeocodeTimeout string `yaml:"reverse_geocode_timeout"`
		IPGeolocateURL        string `yaml:"ip_geolocate_url"`
		IPGeolocateTimeout    string `yaml:"ip_geolocate_timeout"`
		DeviceFixMaxAge       string `yaml:"device_fix_max_age"`
		PreferencePath        string `yaml:"preference_path"`
		Default               struct {
			Latitude  float64 `yaml:"latitude"`
			Longitude float64 `yaml:"longitude"`
			Timezone  string  `yaml:"timezone"`
			Label     string  `yaml:"label"`
		} `yaml:"default"`
	} `yaml:"location"`

	Status struct {
		RefreshInterval string `yaml:"refresh_interval"`
	} `yaml:"status"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		CircuitBreakerEnabled   bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailures  int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerSuccesses int    `yaml:"circuit_breaker_success_threshold"`
		CircuitBreakerTimeout   string `yaml:"circuit_breaker_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// Call from project root.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.PanchangamAPIURL = strings.TrimSpace(os.Getenv("PANCHANGAM_API_URL"))
	if cfg.PanchangamAPIURL == "" {
		cfg.PanchangamAPIURL = fc.PanchangamAPI.URL
	}
	if cfg.PanchangamAPIURL == "" {
		return nil, fmt.Errorf("panchangam_api.url required (set PANCHANGAM_API_URL env or config file)")
	}
	cfg.PanchangamAPITimeout = parseDuration(fc.PanchangamAPI.Timeout, 3*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 8*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 6*time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.ReverseGeocodeURL = fc.Location.ReverseGeocodeURL
	if cfg.ReverseGeocodeURL == "" {
		cfg.ReverseGeocodeURL = "https://nominatim.openstreetmap.org/reverse"
	}
	cfg.ReverseGeocodeTimeout = parseDuration(fc.Location.ReverseGeocodeTimeout, 4*time.Second)
	cfg.IPGeolocateURL = fc.Location.IPGeolocateURL
	if cfg.IPGeolocateURL == "" {
		cfg.IPGeolocateURL = "https://ipapi.co/json/"
	}
	cfg.IPGeolocateTimeout = parseDuration(fc.Location.IPGeolocateTimeout, 4*time.Second)
	cfg.DeviceFixMaxAge = parseDuration(fc.Location.DeviceFixMaxAge, 5*time.Minute)

	cfg.PreferencePath = fc.Location.PreferencePath
	if cfg.PreferencePath == "" {
		cfg.PreferencePath = filepath.Join("data", "preference.db")
	}

	// The terminal fallback must never be empty: Chennai is the safe floor.
	cfg.DefaultLatitude = fc.Location.Default.Latitude
	cfg.DefaultLongitude = fc.Location.Default.Longitude
	if cfg.DefaultLatitude == 0 && cfg.DefaultLongitude == 0 {
		cfg.DefaultLatitude = 13.0827
		cfg.DefaultLongitude = 80.2707
	}
	cfg.DefaultTimezone = fc.Location.Default.Timezone
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "Asia/Kolkata"
	}
	cfg.DefaultLabel = fc.Location.Default.Label
	if cfg.DefaultLabel == "" {
		cfg.DefaultLabel = "Chennai, India"
	}

	cfg.StatusRefreshInterval = parseDuration(fc.Status.RefreshInterval, time.Minute)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailures
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreakerSuccesses
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal on empty
// string, parse error, or a non-positive result.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. Ensures the request timeout covers
// the upstream timeout, the cache backend is known, and the default
// coordinates are in WGS84 range (the terminal fallback is a constant; an
// out-of-range value is a fatal configuration error).
func validate(cfg *Config) error {
	if cfg.RequestTimeout <= cfg.PanchangamAPITimeout {
		cfg.RequestTimeout = cfg.PanchangamAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 ||
		cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return fmt.Errorf("location.default coordinates out of WGS84 range")
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return fmt.Errorf("location.default.timezone: %w", err)
	}
	return nil
}
