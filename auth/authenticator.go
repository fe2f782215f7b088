package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Authenticator issues, verifies and revokes tokens for registered principals.
type Authenticator struct {
	codec      *TokenCodec
	digester   SecretDigester
	principals PrincipalStore
	revoked    RevocationList
	extractor  TokenExtractor
	onReject   MiddlewareErrorHandler
	log        *zap.Logger
	now        func() time.Time
}

// Config wires the dependencies required for Authenticator. Only Secret is
// mandatory; every store defaults to its in-memory implementation.
type Config struct {
	Secret      []byte
	TokenTTL    time.Duration
	Encoding    *base64.Encoding
	Digester    SecretDigester
	Principals  PrincipalStore
	Revocations RevocationList
	Extractor   TokenExtractor
	OnReject    MiddlewareErrorHandler
	Logger      *zap.Logger
	Now         func() time.Time
}

// Seed describes a principal registered at startup.
type Seed struct {
	Identifier string
	Secret     string
	Email      string
	Roles      []string
	Disabled   bool
}

// DefaultSeeds mirrors the demo accounts every fresh deployment starts with.
func DefaultSeeds() []Seed {
	return []Seed{
		{Identifier: "admin", Secret: "admin123", Email: "admin@example.com", Roles: []string{"ADMIN", "USER"}},
		{Identifier: "user", Secret: "user123", Email: "user@example.com", Roles: []string{"USER"}},
		{Identifier: "disabled", Secret: "disabled123", Email: "disabled@example.com", Roles: []string{"USER"}, Disabled: true},
	}
}

func NewAuthenticator(cfg Config) (*Authenticator, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	codec, err := NewTokenCodec(cfg.Secret,
		WithTokenTTL(ttl),
		WithSegmentEncoding(cfg.Encoding),
		WithCodecClock(now),
	)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		codec:      codec,
		digester:   cfg.Digester,
		principals: cfg.Principals,
		revoked:    cfg.Revocations,
		extractor:  cfg.Extractor,
		onReject:   cfg.OnReject,
		log:        cfg.Logger,
		now:        now,
	}
	if a.digester == nil {
		a.digester = NewArgon2idDigester()
	}
	if a.principals == nil {
		a.principals = NewMemoryPrincipalStore()
	}
	if a.revoked == nil {
		a.revoked = NewMemoryRevocationList()
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	return a, nil
}

// RegisterPrincipal digests secret and stores a new enabled principal.
func (a *Authenticator) RegisterPrincipal(ctx context.Context, identifier, secret, email string, roles []string) (Principal, error) {
	if identifier == "" || secret == "" {
		return Principal{}, fmt.Errorf("%w: identifier and secret are required", ErrValidation)
	}
	digest, err := a.digester.Digest(ctx, []byte(secret))
	if err != nil {
		return Principal{}, err
	}
	now := a.now()
	p := Principal{
		Identifier:   identifier,
		SecretDigest: digest,
		Roles:        cloneStrings(roles),
		Email:        email,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.principals.Create(ctx, p); err != nil {
		return Principal{}, err
	}
	a.log.Info("principal registered", zap.String("username", identifier), zap.Strings("roles", roles))
	return p, nil
}

// Authenticate checks the submitted secret and mints a token on success.
// Unknown identifiers and wrong secrets both yield ErrInvalidCredentials;
// disabled accounts yield ErrAccountDisabled.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, secret string) (Token, error) {
	p, err := a.principals.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			a.log.Warn("login rejected", zap.String("username", identifier), zap.String("reason", "unknown principal"))
			return Token{}, ErrInvalidCredentials
		}
		return Token{}, err
	}
	if !p.Enabled {
		a.log.Warn("login rejected", zap.String("username", identifier), zap.String("reason", "disabled"))
		return Token{}, ErrAccountDisabled
	}
	if err := a.digester.Compare(ctx, []byte(secret), p.SecretDigest); err != nil {
		switch {
		case errors.Is(err, ErrSecretMismatch):
			a.log.Warn("login rejected", zap.String("username", identifier), zap.String("reason", "secret mismatch"))
		case errors.Is(err, ErrDigestAlgorithm), errors.Is(err, ErrDigestInvalid):
			a.log.Error("stored digest unusable", zap.String("username", identifier), zap.Error(err))
		default:
			return Token{}, err
		}
		return Token{}, ErrInvalidCredentials
	}

	token, err := a.mint(p)
	if err != nil {
		return Token{}, err
	}
	a.log.Info("login succeeded", zap.String("username", identifier))
	return token, nil
}

// Verify returns the payload of a valid, unexpired, unrevoked token. It never
// returns an error and never panics: every failure is reported as false.
func (a *Authenticator) Verify(ctx context.Context, raw string) (payload Payload, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("token verification panicked", zap.Any("reason", r))
			payload, ok = Payload{}, false
		}
	}()
	p, err := a.Inspect(ctx, raw)
	if err != nil {
		return Payload{}, false
	}
	return p, true
}

// Inspect is Verify with the failure reason.
func (a *Authenticator) Inspect(ctx context.Context, raw string) (Payload, error) {
	revoked, err := a.revoked.Contains(ctx, raw)
	if err != nil {
		return Payload{}, fmt.Errorf("auth: revocation lookup: %w", err)
	}
	if revoked {
		return Payload{}, ErrTokenRevoked
	}
	return a.codec.Decode(raw, a.now())
}

// Revoke adds raw to the denylist. Revoking twice is a no-op.
func (a *Authenticator) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty token", ErrValidation)
	}
	var expiresAt time.Time
	if p, err := a.codec.Peek(raw); err == nil && p.ExpiresAt > 0 {
		expiresAt = time.Unix(p.ExpiresAt, 0)
	}
	if err := a.revoked.Add(ctx, raw, expiresAt); err != nil {
		return err
	}
	return nil
}

// Refresh mints a new token for the principal behind raw, re-reading the
// principal so role or status changes take effect.
func (a *Authenticator) Refresh(ctx context.Context, raw string) (Token, error) {
	payload, err := a.Inspect(ctx, raw)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	p, err := a.principals.Get(ctx, payload.Username)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Token{}, fmt.Errorf("%w: principal no longer exists", ErrUnauthenticated)
		}
		return Token{}, err
	}
	if !p.Enabled {
		return Token{}, fmt.Errorf("%w: principal disabled", ErrUnauthenticated)
	}
	return a.mint(p)
}

// RequireCapability guards next with bearer authentication and, when roles is
// non-empty, a role intersection check.
func (a *Authenticator) RequireCapability(roles ...string) func(http.Handler) http.Handler {
	m, err := NewMiddleware(a,
		WithRequiredRoles(roles...),
		WithTokenExtractor(a.extractor),
		WithErrorHandler(a.onReject),
	)
	if err != nil {
		panic(err)
	}
	return m.Handler
}

// Principal returns a single principal.
func (a *Authenticator) Principal(ctx context.Context, identifier string) (Principal, error) {
	return a.principals.Get(ctx, identifier)
}

// Principals lists every registered principal.
func (a *Authenticator) Principals(ctx context.Context) ([]Principal, error) {
	return a.principals.List(ctx)
}

// SetEnabled toggles a principal. Tokens already issued stay valid until they
// expire or are revoked; Refresh stops working immediately.
func (a *Authenticator) SetEnabled(ctx context.Context, identifier string, enabled bool) (Principal, error) {
	p, err := a.principals.SetEnabled(ctx, identifier, enabled)
	if err != nil {
		return Principal{}, err
	}
	a.log.Info("principal status changed", zap.String("username", identifier), zap.Bool("enabled", enabled))
	return p, nil
}

// Seed registers seeds, skipping identifiers that already exist.
func (a *Authenticator) Seed(ctx context.Context, seeds []Seed) error {
	for _, s := range seeds {
		_, err := a.RegisterPrincipal(ctx, s.Identifier, s.Secret, s.Email, s.Roles)
		if errors.Is(err, ErrConflict) {
			a.log.Debug("seed principal exists", zap.String("username", s.Identifier))
			continue
		}
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Identifier, err)
		}
		if s.Disabled {
			if _, err := a.principals.SetEnabled(ctx, s.Identifier, false); err != nil {
				return fmt.Errorf("seed %q: %w", s.Identifier, err)
			}
		}
	}
	return nil
}

// Stats reports registry and denylist sizes. RevokedTokens is -1 when the
// revocation list cannot count its entries.
func (a *Authenticator) Stats(ctx context.Context) (Stats, error) {
	principals, err := a.principals.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalPrincipals: len(principals), RevokedTokens: -1, GeneratedAt: a.now().UTC()}
	for _, p := range principals {
		if p.Enabled {
			stats.EnabledPrincipals++
		}
	}
	if counter, ok := a.revoked.(RevocationCounter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.RevokedTokens = n
	}
	return stats, nil
}

func (a *Authenticator) mint(p Principal) (Token, error) {
	return a.codec.Mint(Payload{Username: p.Identifier, Roles: p.Roles, Email: p.Email})
}
