package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	QWeatherHost    string
	QWeatherJWTKid  string
	QWeatherJWTSub  string
	QWeatherKeyPath string
	UpstreamTimeout time.Duration

	// DatabaseURL is the Postgres DSN. Empty selects the in-memory stores,
	// which is only useful for local development.
	DatabaseURL string

	RequestTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheSweepInterval    time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts    int
	RetryDelay       time.Duration
	RealtimeFailOpen bool

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerCooldown         time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	// Timezone is the IANA zone for scheduled jobs and ReportTime rendering.
	Timezone string

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	TrackedCities []string
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	QWeather struct {
		Host    string `yaml:"host"`
		Timeout string `yaml:"timeout"`
		JWT     struct {
			Kid            string `yaml:"kid"`
			Sub            string `yaml:"sub"`
			PrivateKeyPath string `yaml:"private_key_path"`
		} `yaml:"jwt"`
	} `yaml:"qweather"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend       string `yaml:"backend"`
		SweepInterval string `yaml:"sweep_interval"`
		Memcached     struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryDelay       string `yaml:"retry_delay"`
		RealtimeFailOpen *bool  `yaml:"realtime_fail_open"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Cooldown         string `yaml:"cooldown"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Scheduler struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"scheduler"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"inflight_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with a
// .env file and real environment variables taking precedence for credentials
// and connection strings. Call from project root.
func Load() (*Config, error) {
	// A missing .env is fine; explicit env always wins because godotenv
	// never overwrites existing variables.
	_ = godotenv.Load()

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

	cfg.QWeatherHost = firstOf(os.Getenv("QWEATHER_API_HOST"), fc.QWeather.Host, "api.qweather.com")
	cfg.QWeatherJWTKid = firstOf(os.Getenv("QWEATHER_JWT_KID"), fc.QWeather.JWT.Kid)
	cfg.QWeatherJWTSub = firstOf(os.Getenv("QWEATHER_JWT_SUB"), fc.QWeather.JWT.Sub)
	cfg.QWeatherKeyPath = firstOf(os.Getenv("QWEATHER_PRIVATE_KEY_PATH"), fc.QWeather.JWT.PrivateKeyPath)
	cfg.UpstreamTimeout = parseDuration(fc.QWeather.Timeout, 5*time.Second)

	cfg.DatabaseURL = firstOf(os.Getenv("DATABASE_URL"), fc.Database.URL)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstOf(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.CacheSweepInterval = parseDuration(fc.Cache.SweepInterval, time.Minute)
	cfg.MemcachedAddrs = firstOf(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 2
	}
	cfg.RetryDelay = parseDuration(fc.Reliability.RetryDelay, 500*time.Millisecond)
	cfg.RealtimeFailOpen = true
	if fc.Reliability.RealtimeFailOpen != nil {
		cfg.RealtimeFailOpen = *fc.Reliability.RealtimeFailOpen
	}
	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreaker.Enabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreaker.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreaker.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerCooldown = parseDuration(fc.Reliability.CircuitBreaker.Cooldown, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cfg.Timezone = firstOf(fc.Scheduler.Timezone, "Asia/Shanghai")

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedCities = fc.Metrics.TrackedCities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location resolves the configured timezone. A bad zone name falls back to
// UTC+8, which is what every legacy client assumes.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("UTC+8", 8*60*60)
	}
	return loc
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is not positive.
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

// validate performs post-load validation of configuration values. The JWT
// credentials have no usable default: without them every upstream call would
// come back 401.
func validate(cfg *Config) error {
	if cfg.QWeatherJWTKid == "" || cfg.QWeatherJWTSub == "" || cfg.QWeatherKeyPath == "" {
		return fmt.Errorf("QWEATHER_JWT_KID, QWEATHER_JWT_SUB and QWEATHER_PRIVATE_KEY_PATH are required (env, .env, or qweather.jwt in config)")
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}
	return nil
}
