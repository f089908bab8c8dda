// Package config loads dishly's settings in layers: built-in defaults, an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/dishly/dishly/internal/playback"
	"github.com/dishly/dishly/internal/ratelimit"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dishly/config.yaml",
}

const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Backend      BackendConfig      `koanf:"backend"`
	Storage      StorageConfig      `koanf:"storage"`
	Live         LiveConfig         `koanf:"live"`
	Registration RegistrationConfig `koanf:"registration"`
	RateLimit    RateLimitConfig    `koanf:"rate_limit"`
	Logging      LoggingConfig      `koanf:"logging"`
}

type ServerConfig struct {
	Port        string   `koanf:"port"`
	BaseURL     string   `koanf:"base_url"`
	StaticDir   string   `koanf:"static_dir"`
	CORSOrigins []string `koanf:"cors_origins"`

	// TrustedProxies lists the CIDRs or addresses allowed to set
	// X-Forwarded-For. Empty means the header is ignored.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

type BackendConfig struct {
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// StorageConfig is the S3-compatible bucket that receives media uploads.
// Uploads are disabled when Endpoint is empty.
type StorageConfig struct {
	Endpoint       string `koanf:"endpoint"`
	PublicEndpoint string `koanf:"public_endpoint"`
	Bucket         string `koanf:"bucket"`
	AccessKey      string `koanf:"access_key"`
	SecretKey      string `koanf:"secret_key"`
	Region         string `koanf:"region"`
	MaxUploadBytes int64  `koanf:"max_upload_bytes"`
}

type LiveConfig struct {
	SessionCheckInterval time.Duration `koanf:"session_check_interval"`
	SettleDelay          time.Duration `koanf:"settle_delay"`
	InitialCheckDelay    time.Duration `koanf:"initial_check_delay"`
	OutboundQueue        int           `koanf:"outbound_queue"`
}

type RegistrationConfig struct {
	DraftTTL  time.Duration `koanf:"draft_ttl"`
	MaxDrafts int           `koanf:"max_drafts"`
}

// RateLimitConfig holds requests per second and burst for the two limited
// route groups.
type RateLimitConfig struct {
	AuthRate    float64       `koanf:"auth_rate"`
	AuthBurst   int           `koanf:"auth_burst"`
	APIRequests int           `koanf:"api_requests"`
	APIWindow   time.Duration `koanf:"api_window"`
	APIDisabled bool          `koanf:"api_disabled"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           "8080",
			BaseURL:        "http://localhost:8080",
			StaticDir:      "web/dist",
			CORSOrigins:    []string{},
			TrustedProxies: []string{},
		},
		Backend: BackendConfig{
			URL:            "http://localhost:3000/api",
			Timeout:        15 * time.Second,
			BreakerTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Bucket:         "dishly",
			Region:         "eu-central-1",
			MaxUploadBytes: 100 << 20,
		},
		Live: LiveConfig{
			SessionCheckInterval: 2 * time.Second,
			SettleDelay:          playback.DefaultSettleDelay,
			InitialCheckDelay:    playback.DefaultInitialCheckDelay,
			OutboundQueue:        64,
		},
		Registration: RegistrationConfig{
			DraftTTL:  time.Hour,
			MaxDrafts: 10000,
		},
		RateLimit: RateLimitConfig{
			AuthRate:    0.5,
			AuthBurst:   5,
			APIRequests: 300,
			APIWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the Config. Environment variables win over the file, which
// wins over defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"server.trusted_proxies",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that came from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":            "server.port",
	"base_url":        "server.base_url",
	"static_dir":      "server.static_dir",
	"cors_origins":    "server.cors_origins",
	"trusted_proxies": "server.trusted_proxies",

	"backend_url":             "backend.url",
	"backend_timeout":         "backend.timeout",
	"backend_breaker_timeout": "backend.breaker_timeout",

	"s3_endpoint":        "storage.endpoint",
	"s3_public_endpoint": "storage.public_endpoint",
	"s3_bucket":          "storage.bucket",
	"s3_access_key":      "storage.access_key",
	"s3_secret_key":      "storage.secret_key",
	"s3_region":          "storage.region",
	"max_upload_bytes":   "storage.max_upload_bytes",

	"session_check_interval": "live.session_check_interval",
	"settle_delay":           "live.settle_delay",
	"initial_check_delay":    "live.initial_check_delay",
	"live_outbound_queue":    "live.outbound_queue",

	"draft_ttl":  "registration.draft_ttl",
	"max_drafts": "registration.max_drafts",

	"auth_rate_limit":    "rate_limit.auth_rate",
	"auth_rate_burst":    "rate_limit.auth_burst",
	"api_rate_requests":  "rate_limit.api_requests",
	"api_rate_window":    "rate_limit.api_window",
	"disable_rate_limit": "rate_limit.api_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc maps a known environment variable to its config path.
// Unknown variables map to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func (c *Config) Validate() error {
	var errs []error

	base, err := url.Parse(c.Server.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		errs = append(errs, fmt.Errorf("BASE_URL must be an absolute http(s) URL, got %q", c.Server.BaseURL))
	}
	backendURL, err := url.Parse(c.Backend.URL)
	if err != nil || backendURL.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.Backend.URL))
	}
	if _, err := ratelimit.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT must be positive"))
	}
	if c.Storage.Endpoint != "" {
		if c.Storage.Bucket == "" || c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			errs = append(errs, errors.New("S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set"))
		}
		if c.Storage.MaxUploadBytes <= 0 {
			errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
		}
	}
	if c.Live.SessionCheckInterval <= 0 {
		errs = append(errs, errors.New("SESSION_CHECK_INTERVAL must be positive"))
	}
	if c.Registration.DraftTTL <= 0 || c.Registration.MaxDrafts <= 0 {
		errs = append(errs, errors.New("DRAFT_TTL and MAX_DRAFTS must be positive"))
	}
	if c.RateLimit.AuthRate <= 0 || c.RateLimit.AuthBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive"))
	}
	if !c.RateLimit.APIDisabled && (c.RateLimit.APIRequests <= 0 || c.RateLimit.APIWindow <= 0) {
		errs = append(errs, errors.New("API_RATE_REQUESTS and API_RATE_WINDOW must be positive"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// SecureCookies reports whether cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

// StorageEnabled reports whether media uploads are configured.
func (c *Config) StorageEnabled() bool {
	return c.Storage.Endpoint != ""
}
