package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testYAML = `
service: gateway
mode: hardened
addr: ":9000"
slow_threshold: 2s
token:
  issuer: edugate
  access_ttl: 10m
  refresh_ttl: 720h
session:
  cookie_name: sid
  ttl: 45m
  sweep_interval: 1m
gateway:
  routes:
    - prefix: /api/grades/
      upstream: http://grades.internal:8080
    - prefix: /api/
      upstream: http://core.internal:8080
  optional_auth_prefixes:
    - /api/catalog/
  rate_limit:
    per_second: 10
    burst: 20
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv(secretEnvVariable, "env-secret")
	cfg, err := Load("gateway", writeConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != ModeHardened || !cfg.Hardened() {
		t.Fatalf("mode not applied: %v", cfg.Mode)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("addr not applied: %s", cfg.Addr)
	}
	if cfg.Token.Secret != "env-secret" {
		t.Fatal("secret must come from the environment")
	}
	if cfg.Token.AccessTTL.Std() != 10*time.Minute {
		t.Fatalf("access ttl not parsed: %v", cfg.Token.AccessTTL.Std())
	}
	if cfg.Session.CookieName != "sid" || cfg.Session.TTL.Std() != 45*time.Minute {
		t.Fatalf("session config not parsed: %+v", cfg.Session)
	}
	if len(cfg.Gateway.Routes) != 2 || cfg.Gateway.Routes[0].Prefix != "/api/grades/" {
		t.Fatalf("routes not parsed: %+v", cfg.Gateway.Routes)
	}
	if cfg.Gateway.RateLimit.PerSecond != 10 || cfg.Gateway.RateLimit.Burst != 20 {
		t.Fatalf("rate limit not parsed: %+v", cfg.Gateway.RateLimit)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv(secretEnvVariable, "env-secret")
	cfg, err := Load("authsvc", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Service != "authsvc" || cfg.Mode != ModeDebug || cfg.Addr != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Session.CookieName != "edugate_session" {
		t.Fatalf("unexpected cookie name: %s", cfg.Session.CookieName)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(secretEnvVariable, "env-secret")
	t.Setenv(addrEnvVariable, ":7070")
	t.Setenv(redisEnvVariable, "redis.internal:6379")
	t.Setenv(pgDSNEnvVariable, "postgres://audit")

	cfg, err := Load("authsvc", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7070" {
		t.Fatalf("addr override lost: %s", cfg.Addr)
	}
	if cfg.Session.RedisAddr != "redis.internal:6379" {
		t.Fatalf("redis override lost: %s", cfg.Session.RedisAddr)
	}
	if cfg.Audit.PostgresDSN != "postgres://audit" {
		t.Fatalf("dsn override lost: %s", cfg.Audit.PostgresDSN)
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Setenv(secretEnvVariable, "")
	if _, err := Load("authsvc", ""); err == nil {
		t.Fatal("expected error without a secret")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv(secretEnvVariable, "env-secret")
	path := writeConfig(t, "service: x\ntypo_key: true\n")
	if _, err := Load("x", path); err == nil {
		t.Fatal("expected strict parsing to reject unknown keys")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv(secretEnvVariable, "env-secret")
	path := writeConfig(t, "slow_threshold: fast\n")
	if _, err := Load("x", path); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Default("authsvc")
		cfg.Token.Secret = "s"
		return cfg
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "production" }},
		{"access ttl not below refresh", func(c *Config) { c.Token.AccessTTL = c.Token.RefreshTTL }},
		{"zero access ttl", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"relative route prefix", func(c *Config) {
			c.Gateway.Routes = []Route{{Prefix: "api/", Upstream: "http://x"}}
		}},
		{"route without upstream", func(c *Config) {
			c.Gateway.Routes = []Route{{Prefix: "/api/", Upstream: " "}}
		}},
	}
	for _, tc := range cases {
		cfg := base()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
