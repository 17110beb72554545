package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Environment variable overrides. Secrets never live in config files.
const (
	secretEnvVariable = "EDUGATE_AUTH_SECRET"
	pgDSNEnvVariable  = "EDUGATE_PG_DSN"
	redisEnvVariable  = "EDUGATE_REDIS_ADDR"
	addrEnvVariable   = "EDUGATE_ADDR"
)

// Mode selects error-response shaping: debug returns real messages and stacks
// for every failure, hardened flattens non-operational errors.
type Mode string

const (
	ModeDebug    Mode = "debug"
	ModeHardened Mode = "hardened"
)

// Duration wraps time.Duration for YAML decoding ("15m", "3s", ...).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Token holds the process-wide signing parameters. Every service shares the
// same secret, algorithm and TTL table so tokens minted anywhere verify everywhere.
type Token struct {
	Secret     string   `yaml:"-"`
	Issuer     string   `yaml:"issuer"`
	AccessTTL  Duration `yaml:"access_ttl"`
	RefreshTTL Duration `yaml:"refresh_ttl"`
}

// Session configures the cookie-session integrity monitor.
type Session struct {
	CookieName    string   `yaml:"cookie_name"`
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
	RedisAddr     string   `yaml:"redis_addr"`
}

// Route maps a path prefix to an upstream service base URL.
type Route struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
}

// RateLimit is a per-client-IP token bucket.
type RateLimit struct {
	PerSecond int `yaml:"per_second"`
	Burst     int `yaml:"burst"`
}

// Gateway configures the edge identity propagator.
type Gateway struct {
	Routes               []Route   `yaml:"routes"`
	OptionalAuthPrefixes []string  `yaml:"optional_auth_prefixes"`
	RateLimit            RateLimit `yaml:"rate_limit"`
}

// Audit configures the asynchronous audit trail.
type Audit struct {
	PostgresDSN string `yaml:"-"`
}

// Config is built once at process start and injected into every component.
// It is never mutated after Load returns.
type Config struct {
	Service       string   `yaml:"service"`
	Mode          Mode     `yaml:"mode"`
	Addr          string   `yaml:"addr"`
	SlowThreshold Duration `yaml:"slow_threshold"`
	Token         Token    `yaml:"token"`
	Session       Session  `yaml:"session"`
	Gateway       Gateway  `yaml:"gateway"`
	Audit         Audit    `yaml:"audit"`
}

// Default returns a configuration with sane development values.
func Default(service string) Config {
	return Config{
		Service:       service,
		Mode:          ModeDebug,
		Addr:          ":8080",
		SlowThreshold: Duration(3 * time.Second),
		Token: Token{
			Issuer:     "edugate",
			AccessTTL:  Duration(15 * time.Minute),
			RefreshTTL: Duration(14 * 24 * time.Hour),
		},
		Session: Session{
			CookieName:    "edugate_session",
			TTL:           Duration(30 * time.Minute),
			SweepInterval: Duration(5 * time.Minute),
		},
		Gateway: Gateway{
			RateLimit: RateLimit{PerSecond: 50, Burst: 100},
		},
	}
}

// Load builds the immutable process configuration from an optional YAML file
// and environment overrides.
func Load(service, path string) (Config, error) {
	cfg := Default(service)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(secretEnvVariable)); v != "" {
		cfg.Token.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv(pgDSNEnvVariable)); v != "" {
		cfg.Audit.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(redisEnvVariable)); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(addrEnvVariable)); v != "" {
		cfg.Addr = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c Config) Validate() error {
	if c.Mode != ModeDebug && c.Mode != ModeHardened {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if strings.TrimSpace(c.Token.Secret) == "" {
		return errors.New("config: auth secret is not configured")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("config: access TTL must be shorter than refresh TTL")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session TTL must be positive")
	}
	for _, route := range c.Gateway.Routes {
		if !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("config: route prefix %q must start with /", route.Prefix)
		}
		if strings.TrimSpace(route.Upstream) == "" {
			return fmt.Errorf("config: route %q has no upstream", route.Prefix)
		}
	}
	return nil
}

// Hardened reports whether the process runs with hardened response shaping.
func (c Config) Hardened() bool { return c.Mode == ModeHardened }
