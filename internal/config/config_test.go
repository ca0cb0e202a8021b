package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"CONFIG_FILE", "PORT", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL", "NEO4J_URI", "AUTH_MODE", "AUTH_HMAC_SECRET", "RATE_RPS", "RATE_BURST", "WEBHOOK_MAX_ATTEMPTS"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Auth.Mode != "dev" || cfg.Webhooks.MaxAttempts != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Search.RiskWeight != 0.7 || cfg.Search.NumPaths != 3 {
		t.Fatalf("search defaults not applied: %+v", cfg.Search)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "evac.yaml")
	body := `
server:
  port: "9000"
  rateRps: 5
search:
  riskWeight: 0.9
  numPaths: 2
  timeout: 500ms
storage:
  sqlitePath: /tmp/evac.db
webhooks:
  pollInterval: 3s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("WEBHOOK_MAX_ATTEMPTS", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9100" {
		t.Fatalf("env should override file port, got %s", cfg.Server.Port)
	}
	if cfg.Server.RateRPS != 5 || cfg.Server.RateBurst != 100 {
		t.Fatalf("rate: %+v", cfg.Server)
	}
	if cfg.Search.RiskWeight != 0.9 || cfg.Search.TimeWeight != 0.3 || cfg.Search.NumPaths != 2 || cfg.Search.Timeout != 500*time.Millisecond {
		t.Fatalf("search: %+v", cfg.Search)
	}
	if cfg.Storage.SQLitePath != "/tmp/evac.db" || cfg.Webhooks.PollInterval != 3*time.Second || cfg.Webhooks.MaxAttempts != 4 {
		t.Fatalf("storage/webhooks: %+v %+v", cfg.Storage, cfg.Webhooks)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("explicit missing file should fail")
	}
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(""); err != nil {
		t.Fatalf("missing CONFIG_FILE should fall back to defaults: %v", err)
	}
	t.Setenv("CONFIG_FILE", "")

	t.Setenv("AUTH_MODE", "hmac")
	if _, err := Load(""); err == nil {
		t.Fatal("hmac without secret should fail")
	}
	t.Setenv("AUTH_HMAC_SECRET", "s3cret")
	if _, err := Load(""); err != nil {
		t.Fatalf("hmac with secret: %v", err)
	}
	t.Setenv("AUTH_MODE", "jwks")
	if _, err := Load(""); err == nil {
		t.Fatal("unknown auth mode should fail")
	}
	t.Setenv("AUTH_MODE", "")
	t.Setenv("RATE_BURST", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("bad RATE_BURST should fail")
	}
	t.Setenv("RATE_BURST", "")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("search:\n  numPaths: 0\n"), 0o600)
	if _, err := Load(path); err == nil {
		t.Fatal("invalid search defaults should fail")
	}
}
