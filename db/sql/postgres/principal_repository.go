package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adeilh/rakh-auth/auth"
	"github.com/lib/pq"
)

// PrincipalRepository persists auth.Principal records.
type PrincipalRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ auth.PrincipalStore = (*PrincipalRepository)(nil)

func NewPrincipalRepository(db *sql.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db, now: time.Now}
}

const principalColumns = `identifier, secret_digest, roles, email, enabled, created_at, updated_at`

// Create relies on the primary key for the uniqueness check.
func (r *PrincipalRepository) Create(ctx context.Context, p auth.Principal) error {
	if p.Identifier == "" {
		return auth.ErrValidation
	}
	digest, err := json.Marshal(p.SecretDigest)
	if err != nil {
		return fmt.Errorf("postgres: encode digest: %w", err)
	}
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	const query = `INSERT INTO principals (` + principalColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.db.ExecContext(ctx, query,
		p.Identifier, digest, pq.Array(roles), p.Email, p.Enabled,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	return translateError(err)
}

func (r *PrincipalRepository) Get(ctx context.Context, identifier string) (auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals WHERE identifier = $1`
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, auth.ErrPrincipalNotFound
	}
	return p, err
}

func (r *PrincipalRepository) List(ctx context.Context) ([]auth.Principal, error) {
	const query = `SELECT ` + principalColumns + ` FROM principals ORDER BY identifier`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list principals: %w", err)
	}
	defer rows.Close()

	var out []auth.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PrincipalRepository) SetEnabled(ctx context.Context, identifier string, enabled bool) (auth.Principal, error) {
	const query = `UPDATE principals SET enabled = $2, updated_at = $3 WHERE identifier = $1 RETURNING ` + principalColumns
	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, identifier, enabled, r.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Principal{}, auth.ErrPrincipalNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (auth.Principal, error) {
	var (
		p      auth.Principal
		digest []byte
		roles  []string
	)
	if err := row.Scan(&p.Identifier, &digest, pq.Array(&roles), &p.Email, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Principal{}, err
		}
		return auth.Principal{}, fmt.Errorf("postgres: scan principal: %w", err)
	}
	if err := json.Unmarshal(digest, &p.SecretDigest); err != nil {
		return auth.Principal{}, fmt.Errorf("postgres: decode digest: %w", err)
	}
	p.Roles = roles
	return p, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return auth.ErrConflict
	}
	return err
}
