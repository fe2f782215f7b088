// Package config loads authd settings. Precedence, lowest first: defaults,
// YAML file, environment, command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Backend names for principal and revocation storage.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type AuthConfig struct {
	// Secret is the HMAC key. Empty means a random key per process.
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	// Encoding is "std" (padded base64) or "rawurl" (JWT compatible).
	Encoding string `yaml:"encoding"`
	Digest   string `yaml:"digest"`
	Pepper   string `yaml:"pepper"`
	Seed     bool   `yaml:"seed"`
	// SweepInterval controls how often expired denylist entries are dropped.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type StorageConfig struct {
	Principals  string `yaml:"principals"`
	Revocations string `yaml:"revocations"`
	PostgresDSN string `yaml:"postgres_dsn"`
	RedisURL    string `yaml:"redis_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:         ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateWindow:      15 * time.Minute,
		},
		Auth: AuthConfig{
			TokenTTL:      24 * time.Hour,
			Encoding:      "std",
			Digest:        "argon2id",
			Seed:          true,
			SweepInterval: time.Minute,
		},
		Storage: StorageConfig{
			Principals:  BackendMemory,
			Revocations: BackendMemory,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load resolves configuration from args and the process environment.
func Load(args []string) (Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("authd", pflag.ContinueOnError)
	path := fs.StringP("config", "c", "", "path to a YAML config file")
	fs.String("addr", cfg.HTTP.Address, "listen address")
	fs.String("secret", "", "HMAC signing secret")
	fs.Duration("token-ttl", cfg.Auth.TokenTTL, "token lifetime")
	fs.String("encoding", cfg.Auth.Encoding, "token segment encoding: std or rawurl")
	fs.String("digest", cfg.Auth.Digest, "secret digest: argon2id, bcrypt or sha256")
	fs.Bool("seed", cfg.Auth.Seed, "register the default demo principals")
	fs.String("principals", cfg.Storage.Principals, "principal store: memory or postgres")
	fs.String("revocations", cfg.Storage.Revocations, "revocation store: memory, redis or postgres")
	fs.String("postgres-dsn", "", "PostgreSQL DSN")
	fs.String("redis-url", "", "Redis URL, redis://[:password@]host:port/db")
	fs.String("log-level", cfg.Log.Level, "log level")
	fs.String("log-format", cfg.Log.Format, "log format: json or console")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if p := *path; p != "" {
		if err := cfg.mergeFile(p); err != nil {
			return Config{}, err
		}
	} else if p, ok := lookup("RAKH_AUTH_CONFIG"); ok && p != "" {
		if err := cfg.mergeFile(p); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.applyFlags(fs)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.Auth.Secret, "RAKH_AUTH_SECRET", "JWT_SECRET")
	str(&c.Auth.Encoding, "RAKH_AUTH_ENCODING")
	str(&c.Auth.Digest, "RAKH_AUTH_DIGEST")
	str(&c.Auth.Pepper, "RAKH_AUTH_PEPPER")
	str(&c.Storage.Principals, "RAKH_AUTH_PRINCIPALS")
	str(&c.Storage.Revocations, "RAKH_AUTH_REVOCATIONS")
	str(&c.Storage.PostgresDSN, "RAKH_AUTH_POSTGRES_DSN", "DATABASE_URL")
	str(&c.Storage.RedisURL, "RAKH_AUTH_REDIS_URL", "REDIS_URL")
	str(&c.Log.Level, "RAKH_AUTH_LOG_LEVEL")
	str(&c.Log.Format, "RAKH_AUTH_LOG_FORMAT")

	if v, ok := lookup("RAKH_AUTH_ADDR"); ok && v != "" {
		c.HTTP.Address = v
	} else if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("%w: PORT %q is not a number", ErrInvalid, v)
		}
		c.HTTP.Address = ":" + v
	}
	if v, ok := lookup("RAKH_AUTH_TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: RAKH_AUTH_TOKEN_TTL: %v", ErrInvalid, err)
		}
		c.Auth.TokenTTL = d
	}
	if v, ok := lookup("RAKH_AUTH_SEED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: RAKH_AUTH_SEED: %v", ErrInvalid, err)
		}
		c.Auth.Seed = b
	}
	return nil
}

// applyFlags copies only the flags that were set explicitly.
func (c *Config) applyFlags(fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "addr":
			c.HTTP.Address = v
		case "secret":
			c.Auth.Secret = v
		case "token-ttl":
			c.Auth.TokenTTL, _ = fs.GetDuration("token-ttl")
		case "encoding":
			c.Auth.Encoding = v
		case "digest":
			c.Auth.Digest = v
		case "seed":
			c.Auth.Seed, _ = fs.GetBool("seed")
		case "principals":
			c.Storage.Principals = v
		case "revocations":
			c.Storage.Revocations = v
		case "postgres-dsn":
			c.Storage.PostgresDSN = v
		case "redis-url":
			c.Storage.RedisURL = v
		case "log-level":
			c.Log.Level = v
		case "log-format":
			c.Log.Format = v
		}
	})
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.TokenTTL < time.Second {
		errs = append(errs, fmt.Errorf("token_ttl must be at least 1s, got %s", c.Auth.TokenTTL))
	}
	switch c.Auth.Encoding {
	case "std", "rawurl":
	default:
		errs = append(errs, fmt.Errorf("encoding must be std or rawurl, got %q", c.Auth.Encoding))
	}
	switch c.Storage.Principals {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres principal store needs postgres_dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown principal store %q", c.Storage.Principals))
	}
	switch c.Storage.Revocations {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres revocation store needs postgres_dsn"))
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("redis revocation store needs redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown revocation store %q", c.Storage.Revocations))
	}
	if c.HTTP.RateLimit < 0 || (c.HTTP.RateLimit > 0 && c.HTTP.RateWindow <= 0) {
		errs = append(errs, errors.New("rate_limit needs a positive rate_window"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// UsesPostgres reports whether any store needs a database connection.
func (c Config) UsesPostgres() bool {
	return c.Storage.Principals == BackendPostgres || c.Storage.Revocations == BackendPostgres
}
