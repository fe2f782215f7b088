package redis

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Options controls how the store connects to the server.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// ParseURL reads redis://[:password@]host[:port][/db].
func ParseURL(raw string) (Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Options{}, fmt.Errorf("redis: parse url: %w", err)
	}
	if u.Scheme != "redis" {
		return Options{}, fmt.Errorf("redis: unsupported scheme %q", u.Scheme)
	}
	opts := Options{Addr: u.Host}
	if u.Port() == "" && u.Hostname() != "" {
		opts.Addr = u.Hostname() + ":6379"
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}
	if db := strings.Trim(u.Path, "/"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return Options{}, fmt.Errorf("redis: invalid database %q", db)
		}
		opts.DB = n
	}
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = "127.0.0.1:6379"
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 2 * time.Second
	}
	if o.DB < 0 {
		o.DB = 0
	}
	if o.PoolSize <= 0 {
		o.PoolSize = 8
	}
	return o
}
