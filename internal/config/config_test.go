package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil, env(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Address != ":3000" || cfg.Auth.TokenTTL != 24*time.Hour || cfg.Auth.Encoding != "std" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Auth.Secret != "" {
		t.Fatalf("default secret must be empty, got %q", cfg.Auth.Secret)
	}
	if cfg.HTTP.RateLimit != 100 || cfg.HTTP.RateWindow != 15*time.Minute {
		t.Fatalf("unexpected rate limit %d/%s", cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "authd.yaml")
	yml := "http:\n  address: \":7000\"\nauth:\n  secret: from-file\n  token_ttl: 1h\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(
		[]string{"--config", path, "--token-ttl", "30m"},
		env(map[string]string{"JWT_SECRET": "from-env", "PORT": "4000"}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("env should override file secret, got %q", cfg.Auth.Secret)
	}
	if cfg.HTTP.Address != ":4000" {
		t.Fatalf("PORT should override file address, got %q", cfg.HTTP.Address)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Fatalf("flag should override file ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("file log level lost, got %q", cfg.Log.Level)
	}
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  encoding: rawurl\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(nil, env(map[string]string{"RAKH_AUTH_CONFIG": path}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.Encoding != "rawurl" {
		t.Fatalf("encoding = %q", cfg.Auth.Encoding)
	}
}

func TestLoadRejectsUnknownYAMLField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  secrett: typo\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := load([]string{"-c", path}, env(nil)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	for _, e := range []map[string]string{
		{"PORT": "http"},
		{"RAKH_AUTH_TOKEN_TTL": "forever"},
		{"RAKH_AUTH_SEED": "maybe"},
	} {
		if _, err := load(nil, env(e)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("env %v: expected ErrInvalid, got %v", e, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"short ttl":          func(c *Config) { c.Auth.TokenTTL = 0 },
		"bad encoding":       func(c *Config) { c.Auth.Encoding = "hex" },
		"postgres no dsn":    func(c *Config) { c.Storage.Principals = BackendPostgres },
		"redis no url":       func(c *Config) { c.Storage.Revocations = BackendRedis },
		"unknown revocation": func(c *Config) { c.Storage.Revocations = "etcd" },
		"rate without window": func(c *Config) {
			c.HTTP.RateWindow = 0
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestUsesPostgres(t *testing.T) {
	cfg := Default()
	if cfg.UsesPostgres() {
		t.Fatal("memory defaults should not need postgres")
	}
	cfg.Storage.Revocations = BackendPostgres
	if !cfg.UsesPostgres() {
		t.Fatal("expected postgres")
	}
}
