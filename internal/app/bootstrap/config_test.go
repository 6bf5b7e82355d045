package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/m62")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadConfig("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("expected defaults, got err=%v", err)
	}
	if cfg.ServiceID != "M62-access-control-bridge" {
		t.Fatalf("unexpected service id: %s", cfg.ServiceID)
	}
	if cfg.HTTPPort != 8086 || cfg.GRPCPort != 9086 {
		t.Fatalf("unexpected default ports: http=%d grpc=%d", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.VendorRequestTimeout != 30*time.Second || cfg.VendorConnectTimeout != 10*time.Second {
		t.Fatalf("unexpected vendor timeouts: %v/%v", cfg.VendorRequestTimeout, cfg.VendorConnectTimeout)
	}
	if cfg.VendorMaxRetries != 3 || cfg.VendorRetryBackoff != 500*time.Millisecond {
		t.Fatalf("unexpected vendor retry defaults: %d/%v", cfg.VendorMaxRetries, cfg.VendorRetryBackoff)
	}
	if cfg.TokenExpiryMargin != 300*time.Second || cfg.TokenLocalTTL != 60*time.Second {
		t.Fatalf("unexpected token defaults: %v/%v", cfg.TokenExpiryMargin, cfg.TokenLocalTTL)
	}
	if cfg.TokenKeyPrefix != "access:token" {
		t.Fatalf("unexpected token key prefix: %s", cfg.TokenKeyPrefix)
	}
	if cfg.TokenLockTTL != 30*time.Second || cfg.TokenLockWait != 10*time.Second {
		t.Fatalf("unexpected lock defaults: %v/%v", cfg.TokenLockTTL, cfg.TokenLockWait)
	}
	if cfg.PollInterval != 500*time.Millisecond || !cfg.PollAutoConfirm {
		t.Fatalf("unexpected poller defaults: %v/%v", cfg.PollInterval, cfg.PollAutoConfirm)
	}
	if cfg.StreamName != "access-events" || cfg.StreamGroup != "workers" {
		t.Fatalf("unexpected stream defaults: %s/%s", cfg.StreamName, cfg.StreamGroup)
	}
	if cfg.StreamBlock != 5*time.Second || cfg.StreamMaxRetries != 3 {
		t.Fatalf("unexpected stream tuning: %v/%d", cfg.StreamBlock, cfg.StreamMaxRetries)
	}
	if cfg.WebhookTimeout != 30*time.Second {
		t.Fatalf("unexpected webhook timeout: %v", cfg.WebhookTimeout)
	}
	if cfg.VendorConfigured() {
		t.Fatal("vendor should not be configured by default")
	}
	if cfg.WebhookConfigured() {
		t.Fatal("webhook should not be configured by default")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/m62")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VENDOR_BASE_URL", "https://gateway.example.com/")
	t.Setenv("VENDOR_APP_KEY", "app-key-1")
	t.Setenv("VENDOR_SECRET_KEY", "secret-key-1")
	t.Setenv("POLL_INTERVAL_MS", "250")
	t.Setenv("POLL_MSG_TYPES", "door_event, alarm ,")
	t.Setenv("POLL_AUTO_CONFIRM", "false")
	t.Setenv("TOKEN_EXPIRY_MARGIN_SECONDS", "120")
	t.Setenv("STREAM_MAX_RETRIES", "5")
	t.Setenv("STREAM_CONSUMER_NAME", "worker-fixed-1")
	t.Setenv("WEBHOOK_URL", "https://events.example.com/hook")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")

	cfg, err := LoadConfig("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.VendorBaseURL != "https://gateway.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.VendorBaseURL)
	}
	if !cfg.VendorConfigured() {
		t.Fatal("vendor should be configured")
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if len(cfg.PollMsgTypes) != 2 || cfg.PollMsgTypes[0] != "door_event" || cfg.PollMsgTypes[1] != "alarm" {
		t.Fatalf("unexpected msg types: %v", cfg.PollMsgTypes)
	}
	if cfg.PollAutoConfirm {
		t.Fatal("expected auto confirm disabled")
	}
	if cfg.TokenExpiryMargin != 120*time.Second {
		t.Fatalf("unexpected expiry margin: %v", cfg.TokenExpiryMargin)
	}
	if cfg.StreamMaxRetries != 5 {
		t.Fatalf("unexpected stream retries: %d", cfg.StreamMaxRetries)
	}
	if cfg.StreamConsumerName != "worker-fixed-1" {
		t.Fatalf("unexpected consumer name: %s", cfg.StreamConsumerName)
	}
	if !cfg.WebhookConfigured() || cfg.WebhookSecret != "hook-secret" {
		t.Fatalf("unexpected webhook config: %q/%q", cfg.WebhookURL, cfg.WebhookSecret)
	}
}

func TestLoadConfigRequiresDatastores(t *testing.T) {
	t.Setenv("DB_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("REDIS_URL", "")

	if _, err := LoadConfig("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected error without database url")
	}

	t.Setenv("DB_URL", "postgres://localhost:5432/m62")
	if _, err := LoadConfig("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected error without redis url")
	}
}

func TestLoadConfigRejectsPartialVendorCredentials(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost:5432/m62")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VENDOR_APP_KEY", "app-key-only")

	if _, err := LoadConfig("testdata/does-not-exist.yaml"); err == nil {
		t.Fatal("expected error for partial vendor configuration")
	}
}

func TestLoadConfigReadsFileAndEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "default.yaml")
	raw := `service:
  id: m62-bridge-local
  http_port: 18086
dependencies:
  postgres_url: postgres://file-host:5432/m62
  redis_url: redis://file-host:6379/0
vendor:
  base_url: https://file-gateway.example.com
  app_key: file-app-key
  secret_key: file-secret-key
poller:
  interval_ms: 750
  msg_types: [door_event]
  auto_confirm: false
stream:
  name: file-stream
  group: file-group
webhook:
  url: https://file-hook.example.com/events
  secret: file-hook-secret
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("DB_URL", "")
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("STREAM_NAME", "env-stream")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceID != "m62-bridge-local" || cfg.HTTPPort != 18086 {
		t.Fatalf("file values not applied: %s/%d", cfg.ServiceID, cfg.HTTPPort)
	}
	if cfg.DatabaseURL != "postgres://file-host:5432/m62" {
		t.Fatalf("unexpected database url: %s", cfg.DatabaseURL)
	}
	if cfg.VendorAppKey != "file-app-key" || !cfg.VendorConfigured() {
		t.Fatalf("vendor file values not applied: %s", cfg.VendorAppKey)
	}
	if cfg.PollInterval != 750*time.Millisecond || cfg.PollAutoConfirm {
		t.Fatalf("poller file values not applied: %v/%v", cfg.PollInterval, cfg.PollAutoConfirm)
	}
	if cfg.StreamName != "env-stream" {
		t.Fatalf("env should override file, got %s", cfg.StreamName)
	}
	if cfg.StreamGroup != "file-group" {
		t.Fatalf("unexpected stream group: %s", cfg.StreamGroup)
	}
	if cfg.WebhookURL != "https://file-hook.example.com/events" {
		t.Fatalf("unexpected webhook url: %s", cfg.WebhookURL)
	}
}
