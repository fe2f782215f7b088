package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/adeilh/rakh-auth/auth"
	"go.uber.org/zap"
)

// RevocationRepository stores the token denylist. Only the SHA-256 of each
// token is kept.
type RevocationRepository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ auth.RevocationList    = (*RevocationRepository)(nil)
	_ auth.RevocationCounter = (*RevocationRepository)(nil)
)

func NewRevocationRepository(db *sql.DB) *RevocationRepository {
	return &RevocationRepository{db: db, now: time.Now}
}

func (r *RevocationRepository) Add(ctx context.Context, raw string, expiresAt time.Time) error {
	var exp sql.NullTime
	if !expiresAt.IsZero() {
		exp = sql.NullTime{Time: expiresAt.UTC(), Valid: true}
	}
	const query = `INSERT INTO revoked_tokens (token_hash, expires_at, revoked_at) VALUES ($1, $2, $3)
	               ON CONFLICT (token_hash) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, tokenHash(raw), exp, r.now().UTC()); err != nil {
		return fmt.Errorf("postgres: revoke token: %w", err)
	}
	return nil
}

func (r *RevocationRepository) Contains(ctx context.Context, raw string) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = $1)`, tokenHash(raw)).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("postgres: lookup revoked token: %w", err)
	}
	return found, nil
}

func (r *RevocationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM revoked_tokens`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count revoked tokens: %w", err)
	}
	return n, nil
}

// Sweep deletes entries whose token has expired.
func (r *RevocationRepository) Sweep(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at IS NOT NULL AND expires_at <= $1`, r.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: sweep revoked tokens: %w", err)
	}
	return res.RowsAffected()
}

// Run sweeps on every tick until ctx is done.
func (r *RevocationRepository) Run(ctx context.Context, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				log.Warn("revocation sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("revocation sweep", zap.Int64("removed", n))
			}
		}
	}
}

func tokenHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
