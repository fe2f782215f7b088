// Package redis is a small RESP client implementing cache.Store, used to share
// the token denylist between authd replicas.
package redis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/adeilh/rakh-auth/cache"
)

var ErrClosed = errors.New("redis: store closed")

// Store implements cache.Store over a bounded pool of connections.
type Store struct {
	opts   Options
	dialFn DialFunc
	pool   chan *conn
	done   chan struct{}
}

var (
	_ cache.Store   = (*Store)(nil)
	_ cache.Counter = (*Store)(nil)
)

type DialFunc func(context.Context, Options) (net.Conn, error)

func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()
	return &Store{
		opts:   cfg,
		dialFn: defaultDial,
		pool:   make(chan *conn, cfg.PoolSize),
		done:   make(chan struct{}),
	}
}

// WithDial overrides the dialer.
func (s *Store) WithDial(fn DialFunc) *Store {
	if fn != nil {
		s.dialFn = fn
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	reply, err := s.Do(ctx, "GET", key)
	if err != nil {
		return nil, err
	}
	switch v := reply.(type) {
	case nil:
		return nil, cache.ErrNotFound
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("redis: unexpected GET reply %T", reply)
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{"SET", key, string(value)}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		args = append(args, "PX", strconv.FormatInt(ms, 10))
	}
	reply, err := s.Do(ctx, args...)
	if err != nil {
		return err
	}
	return expectOK("SET", reply)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	reply, err := s.Do(ctx, "DEL", key)
	if err != nil {
		return err
	}
	if _, ok := reply.(int64); !ok {
		return fmt.Errorf("redis: unexpected DEL reply %T", reply)
	}
	return nil
}

// CountPrefix walks the keyspace with SCAN MATCH prefix*.
func (s *Store) CountPrefix(ctx context.Context, prefix string) (int, error) {
	cursor := "0"
	total := 0
	for {
		reply, err := s.Do(ctx, "SCAN", cursor, "MATCH", escapeGlob(prefix)+"*", "COUNT", "500")
		if err != nil {
			return 0, err
		}
		parts, ok := reply.([]any)
		if !ok || len(parts) != 2 {
			return 0, fmt.Errorf("redis: unexpected SCAN reply %v", reply)
		}
		next, ok := parts[0].([]byte)
		if !ok {
			return 0, fmt.Errorf("redis: unexpected SCAN cursor %T", parts[0])
		}
		keys, _ := parts[1].([]any)
		total += len(keys)
		cursor = string(next)
		if cursor == "0" {
			return total, nil
		}
	}
}

func (s *Store) Ping(ctx context.Context) error {
	reply, err := s.Do(ctx, "PING")
	if err != nil {
		return err
	}
	if msg, ok := reply.(string); !ok || msg != "PONG" {
		return fmt.Errorf("redis: unexpected PING reply %v", reply)
	}
	return nil
}

// Do sends one command and returns its decoded reply. Server error replies are
// returned as ServerError and leave the connection usable.
func (s *Store) Do(ctx context.Context, args ...string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTrip(ctx, s.opts, args...)
	var serverErr ServerError
	s.release(c, err != nil && !errors.As(err, &serverErr))
	return reply, err
}

// Close drops every pooled connection. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	for {
		select {
		case c := <-s.pool:
			_ = c.Close()
		default:
			return nil
		}
	}
}

type conn struct {
	net.Conn
	reader *bufio.Reader
	buf    []byte
}

func (c *conn) roundTrip(ctx context.Context, opts Options, args ...string) (any, error) {
	if err := c.SetWriteDeadline(deadline(ctx, opts.WriteTimeout)); err != nil {
		return nil, err
	}
	c.buf = appendCommand(c.buf[:0], args...)
	if _, err := c.Write(c.buf); err != nil {
		return nil, err
	}
	if err := c.SetReadDeadline(deadline(ctx, opts.ReadTimeout)); err != nil {
		return nil, err
	}
	return readReply(c.reader)
}

func (s *Store) acquire(ctx context.Context) (*conn, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}
	select {
	case c := <-s.pool:
		return c, nil
	default:
	}
	nc, err := s.dialFn(ctx, s.opts)
	if err != nil {
		return nil, fmt.Errorf("redis: dial %s: %w", s.opts.Addr, err)
	}
	c := &conn{Conn: nc, reader: bufio.NewReader(nc)}
	if err := s.handshake(ctx, c); err != nil {
		_ = nc.Close()
		return nil, err
	}
	return c, nil
}

func (s *Store) release(c *conn, broken bool) {
	if broken {
		_ = c.Close()
		return
	}
	select {
	case <-s.done:
		_ = c.Close()
		return
	default:
	}
	select {
	case s.pool <- c:
	default:
		_ = c.Close()
	}
}

func (s *Store) handshake(ctx context.Context, c *conn) error {
	if s.opts.Password != "" {
		reply, err := c.roundTrip(ctx, s.opts, "AUTH", s.opts.Password)
		if err != nil {
			return err
		}
		if err := expectOK("AUTH", reply); err != nil {
			return err
		}
	}
	if s.opts.DB > 0 {
		reply, err := c.roundTrip(ctx, s.opts, "SELECT", strconv.Itoa(s.opts.DB))
		if err != nil {
			return err
		}
		if err := expectOK("SELECT", reply); err != nil {
			return err
		}
	}
	return nil
}

func defaultDial(ctx context.Context, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}
	return dialer.DialContext(ctx, "tcp", opts.Addr)
}

func expectOK(cmd string, reply any) error {
	if msg, ok := reply.(string); ok && strings.EqualFold(msg, "OK") {
		return nil
	}
	return fmt.Errorf("redis: %s failed: %v", cmd, reply)
}

// deadline picks the earlier of the context deadline and now+timeout.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
