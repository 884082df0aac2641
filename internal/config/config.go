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

	// Timezone is the school's IANA timezone. Day slicing, weekday
	// selection and the counter reset all follow it.
	Timezone        string
	SchoolStartHour int

	DefaultLatitude  float64
	DefaultLongitude float64

	ModelPath      string
	SnowDayCSVPath string
	CounterCSVPath string // empty disables counter persistence

	WeatherArchiveURL  string
	WeatherForecastURL string
	WeatherAPITimeout  time.Duration
	RetryAttempts      int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration

	AlertFeedBaseURL   string
	AlertLanguage      string
	AlertBufferDegrees float64
	AlertMaxConcurrent int
	AlertFeedTimeout   time.Duration

	CacheBackend          string // "off", "in_memory" or "memcached"
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	School struct {
		Timezone  string  `yaml:"timezone"`
		StartHour *int    `yaml:"start_hour"`
		Latitude  float64 `yaml:"latitude"`
		Longitude float64 `yaml:"longitude"`
	} `yaml:"school"`

	Artifacts struct {
		Model      string `yaml:"model"`
		SnowDayCSV string `yaml:"snow_day_csv"`
		CounterCSV string `yaml:"counter_csv"`
	} `yaml:"artifacts"`

	WeatherAPI struct {
		ArchiveURL  string `yaml:"archive_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"weather_api"`

	AlertFeed struct {
		BaseURL       string  `yaml:"base_url"`
		Language      string  `yaml:"language"`
		BufferDegrees float64 `yaml:"buffer_degrees"`
		MaxConcurrent int     `yaml:"max_concurrent"`
		Timeout       string  `yaml:"timeout"`
	} `yaml:"alert_feed"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// Call from project root. PORT, CACHE_BACKEND and MEMCACHED_ADDRS env vars
// override their file values.
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

	cfg.ServerPort = os.Getenv("PORT")
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.Timezone = fc.School.Timezone
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Toronto"
	}
	cfg.SchoolStartHour = 7
	if fc.School.StartHour != nil {
		cfg.SchoolStartHour = *fc.School.StartHour
	}
	cfg.DefaultLatitude = fc.School.Latitude
	cfg.DefaultLongitude = fc.School.Longitude
	if cfg.DefaultLatitude == 0 && cfg.DefaultLongitude == 0 {
		cfg.DefaultLatitude = 44.569
		cfg.DefaultLongitude = -80.98
	}

	cfg.ModelPath = fc.Artifacts.Model
	if cfg.ModelPath == "" {
		cfg.ModelPath = filepath.Join("data", "model.json")
	}
	cfg.SnowDayCSVPath = fc.Artifacts.SnowDayCSV
	if cfg.SnowDayCSVPath == "" {
		cfg.SnowDayCSVPath = filepath.Join("data", "snow_day_dates.csv")
	}
	cfg.CounterCSVPath = fc.Artifacts.CounterCSV

	cfg.WeatherArchiveURL = fc.WeatherAPI.ArchiveURL
	if cfg.WeatherArchiveURL == "" {
		cfg.WeatherArchiveURL = "https://archive-api.open-meteo.com/v1/archive"
	}
	cfg.WeatherForecastURL = fc.WeatherAPI.ForecastURL
	if cfg.WeatherForecastURL == "" {
		cfg.WeatherForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.WeatherAPITimeout = parseDuration(fc.WeatherAPI.Timeout, 10*time.Second)

	cfg.AlertFeedBaseURL = fc.AlertFeed.BaseURL
	if cfg.AlertFeedBaseURL == "" {
		cfg.AlertFeedBaseURL = "https://dd.weather.gc.ca"
	}
	cfg.AlertLanguage = fc.AlertFeed.Language
	if cfg.AlertLanguage == "" {
		cfg.AlertLanguage = "en-CA"
	}
	// Polygon buffer tolerance in degrees; a tunable, not a hardcoded law.
	cfg.AlertBufferDegrees = fc.AlertFeed.BufferDegrees
	if cfg.AlertBufferDegrees == 0 {
		cfg.AlertBufferDegrees = 0.05
	}
	cfg.AlertMaxConcurrent = fc.AlertFeed.MaxConcurrent
	if cfg.AlertMaxConcurrent <= 0 {
		cfg.AlertMaxConcurrent = 8
	}
	cfg.AlertFeedTimeout = parseDuration(fc.AlertFeed.Timeout, 10*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
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

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

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

	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
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

// validate performs post-load validation of configuration values.
func validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("school.timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.SchoolStartHour < 0 || cfg.SchoolStartHour > 23 {
		return fmt.Errorf("school.start_hour must be in [0, 23], got %d", cfg.SchoolStartHour)
	}
	if cfg.DefaultLatitude < -90 || cfg.DefaultLatitude > 90 {
		return fmt.Errorf("school.latitude out of range: %v", cfg.DefaultLatitude)
	}
	if cfg.DefaultLongitude < -180 || cfg.DefaultLongitude > 180 {
		return fmt.Errorf("school.longitude out of range: %v", cfg.DefaultLongitude)
	}
	if cfg.AlertBufferDegrees < 0 {
		return fmt.Errorf("alert_feed.buffer_degrees must be >= 0, got %v", cfg.AlertBufferDegrees)
	}
	switch cfg.CacheBackend {
	case "off", "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be off, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + cfg.AlertFeedTimeout
	}
	return nil
}
