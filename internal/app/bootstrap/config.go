package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M62.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int32

	VendorBaseURL        string
	VendorAppKey         string
	VendorSecretKey      string
	VendorRequestTimeout time.Duration
	VendorConnectTimeout time.Duration
	VendorMaxRetries     int
	VendorRetryBackoff   time.Duration

	TokenExpiryMargin time.Duration
	TokenLocalTTL     time.Duration
	TokenKeyPrefix    string
	TokenLockTTL      time.Duration
	TokenLockWait     time.Duration

	PollInterval    time.Duration
	PollMsgTypes    []string
	PollAutoConfirm bool

	StreamName         string
	StreamGroup        string
	StreamConsumerName string
	StreamBlock        time.Duration
	StreamMaxRetries   int

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration
}

// VendorConfigured reports whether the vendor credential pair is present.
// The api runtime serves its surface without it; the poller refuses to start.
func (c Config) VendorConfigured() bool {
	return c.VendorBaseURL != "" && c.VendorAppKey != "" && c.VendorSecretKey != ""
}

// WebhookConfigured reports whether the downstream webhook is reachable by
// configuration. The worker runtime requires it.
func (c Config) WebhookConfigured() bool {
	return c.WebhookURL != ""
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Vendor struct {
		BaseURL   string `yaml:"base_url"`
		AppKey    string `yaml:"app_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"vendor"`
	Poller struct {
		IntervalMS  int      `yaml:"interval_ms"`
		MsgTypes    []string `yaml:"msg_types"`
		AutoConfirm *bool    `yaml:"auto_confirm"`
	} `yaml:"poller"`
	Stream struct {
		Name  string `yaml:"name"`
		Group string `yaml:"group"`
	} `yaml:"stream"`
	Webhook struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:            "M62-access-control-bridge",
		HTTPPort:             8086,
		GRPCPort:             9086,
		MaxDBConns:           20,
		VendorRequestTimeout: 30 * time.Second,
		VendorConnectTimeout: 10 * time.Second,
		VendorMaxRetries:     3,
		VendorRetryBackoff:   500 * time.Millisecond,
		TokenExpiryMargin:    300 * time.Second,
		TokenLocalTTL:        60 * time.Second,
		TokenKeyPrefix:       "access:token",
		TokenLockTTL:         30 * time.Second,
		TokenLockWait:        10 * time.Second,
		PollInterval:         500 * time.Millisecond,
		PollAutoConfirm:      true,
		StreamName:           "access-events",
		StreamGroup:          "workers",
		StreamBlock:          5 * time.Second,
		StreamMaxRetries:     3,
		WebhookTimeout:       30 * time.Second,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Vendor.BaseURL != "" {
			cfg.VendorBaseURL = f.Vendor.BaseURL
		}
		if f.Vendor.AppKey != "" {
			cfg.VendorAppKey = f.Vendor.AppKey
		}
		if f.Vendor.SecretKey != "" {
			cfg.VendorSecretKey = f.Vendor.SecretKey
		}
		if f.Poller.IntervalMS > 0 {
			cfg.PollInterval = time.Duration(f.Poller.IntervalMS) * time.Millisecond
		}
		if len(f.Poller.MsgTypes) > 0 {
			cfg.PollMsgTypes = f.Poller.MsgTypes
		}
		if f.Poller.AutoConfirm != nil {
			cfg.PollAutoConfirm = *f.Poller.AutoConfirm
		}
		if f.Stream.Name != "" {
			cfg.StreamName = f.Stream.Name
		}
		if f.Stream.Group != "" {
			cfg.StreamGroup = f.Stream.Group
		}
		if f.Webhook.URL != "" {
			cfg.WebhookURL = f.Webhook.URL
		}
		if f.Webhook.Secret != "" {
			cfg.WebhookSecret = f.Webhook.Secret
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.VendorBaseURL = strings.TrimRight(envOrDefault("VENDOR_BASE_URL", cfg.VendorBaseURL), "/")
	cfg.VendorAppKey = envOrDefault("VENDOR_APP_KEY", cfg.VendorAppKey)
	cfg.VendorSecretKey = envOrDefault("VENDOR_SECRET_KEY", cfg.VendorSecretKey)
	cfg.TokenKeyPrefix = envOrDefault("TOKEN_KEY_PREFIX", cfg.TokenKeyPrefix)
	cfg.PollMsgTypes = envCSV("POLL_MSG_TYPES", cfg.PollMsgTypes)
	cfg.PollAutoConfirm = envBool("POLL_AUTO_CONFIRM", cfg.PollAutoConfirm)
	cfg.StreamName = envOrDefault("STREAM_NAME", cfg.StreamName)
	cfg.StreamGroup = envOrDefault("STREAM_GROUP", cfg.StreamGroup)
	cfg.StreamConsumerName = envOrDefault("STREAM_CONSUMER_NAME", cfg.StreamConsumerName)
	cfg.WebhookURL = envOrDefault("WEBHOOK_URL", cfg.WebhookURL)
	cfg.WebhookSecret = envOrDefault("WEBHOOK_SECRET", cfg.WebhookSecret)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.VendorMaxRetries = envInt("VENDOR_MAX_RETRIES", cfg.VendorMaxRetries)
	cfg.StreamMaxRetries = envInt("STREAM_MAX_RETRIES", cfg.StreamMaxRetries)

	cfg.VendorRequestTimeout = time.Duration(envInt("VENDOR_REQUEST_TIMEOUT_SECONDS", int(cfg.VendorRequestTimeout.Seconds()))) * time.Second
	cfg.VendorConnectTimeout = time.Duration(envInt("VENDOR_CONNECT_TIMEOUT_SECONDS", int(cfg.VendorConnectTimeout.Seconds()))) * time.Second
	cfg.VendorRetryBackoff = time.Duration(envInt("VENDOR_RETRY_BACKOFF_MS", int(cfg.VendorRetryBackoff.Milliseconds()))) * time.Millisecond
	cfg.TokenExpiryMargin = time.Duration(envInt("TOKEN_EXPIRY_MARGIN_SECONDS", int(cfg.TokenExpiryMargin.Seconds()))) * time.Second
	cfg.TokenLocalTTL = time.Duration(envInt("TOKEN_LOCAL_TTL_SECONDS", int(cfg.TokenLocalTTL.Seconds()))) * time.Second
	cfg.TokenLockTTL = time.Duration(envInt("TOKEN_LOCK_TTL_SECONDS", int(cfg.TokenLockTTL.Seconds()))) * time.Second
	cfg.TokenLockWait = time.Duration(envInt("TOKEN_LOCK_WAIT_SECONDS", int(cfg.TokenLockWait.Seconds()))) * time.Second
	cfg.PollInterval = time.Duration(envInt("POLL_INTERVAL_MS", int(cfg.PollInterval.Milliseconds()))) * time.Millisecond
	cfg.StreamBlock = time.Duration(envInt("STREAM_BLOCK_SECONDS", int(cfg.StreamBlock.Seconds()))) * time.Second
	cfg.WebhookTimeout = time.Duration(envInt("WEBHOOK_TIMEOUT_SECONDS", int(cfg.WebhookTimeout.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if cfg.VendorAppKey != "" || cfg.VendorSecretKey != "" || cfg.VendorBaseURL != "" {
		if !cfg.VendorConfigured() {
			return Config{}, fmt.Errorf("partial vendor configuration: VENDOR_BASE_URL, VENDOR_APP_KEY and VENDOR_SECRET_KEY must be set together")
		}
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
