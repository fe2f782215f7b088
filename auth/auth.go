package auth

import (
	"context"
	"time"
)

// Header is the fixed metadata segment of a token.
type Header struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
}

// Payload is the claim set carried by every token. Timestamps are epoch seconds.
type Payload struct {
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	Email     string   `json:"email"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
}

// HasAnyRole reports whether the payload carries at least one of roles.
func (p Payload) HasAnyRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Expired reports whether the payload is no longer valid at the given instant.
func (p Payload) Expired(at time.Time) bool {
	return p.ExpiresAt <= at.Unix()
}

// Token is a freshly minted credential.
type Token struct {
	Raw     string
	Header  Header
	Payload Payload
}

// ExpiresAt returns the expiry as a time value.
func (t Token) ExpiresAt() time.Time { return time.Unix(t.Payload.ExpiresAt, 0).UTC() }

// SecretDigest contains what is needed to check a submitted secret.
type SecretDigest struct {
	Algorithm string    `json:"algorithm"`
	Value     []byte    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is a registered identity.
type Principal struct {
	Identifier   string
	SecretDigest SecretDigest
	Roles        []string
	Email        string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary is the public view of a principal, safe to hand to callers.
type Summary struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	Enabled  bool     `json:"enabled"`
}

// Summary strips the digest from the principal.
func (p Principal) Summary() Summary {
	return Summary{
		Username: p.Identifier,
		Email:    p.Email,
		Roles:    cloneStrings(p.Roles),
		Enabled:  p.Enabled,
	}
}

// SecretDigester turns secrets into one-way digests and checks them.
type SecretDigester interface {
	Digest(ctx context.Context, secret []byte) (SecretDigest, error)
	Compare(ctx context.Context, secret []byte, digest SecretDigest) error
}

// PrincipalStore persists principals. Create must check uniqueness and insert atomically.
type PrincipalStore interface {
	Create(ctx context.Context, p Principal) error
	Get(ctx context.Context, identifier string) (Principal, error)
	List(ctx context.Context) ([]Principal, error)
	SetEnabled(ctx context.Context, identifier string, enabled bool) (Principal, error)
}

// RevocationList is the denylist of raw serialized tokens.
// A zero expiresAt keeps the entry for the lifetime of the list.
type RevocationList interface {
	Add(ctx context.Context, raw string, expiresAt time.Time) error
	Contains(ctx context.Context, raw string) (bool, error)
}

// RevocationCounter is implemented by lists that can report their size.
type RevocationCounter interface {
	Count(ctx context.Context) (int, error)
}

// Stats summarises the authenticator state.
type Stats struct {
	TotalPrincipals   int       `json:"totalUsers"`
	EnabledPrincipals int       `json:"enabledUsers"`
	RevokedTokens     int       `json:"blacklistedTokens"`
	GeneratedAt       time.Time `json:"lastUpdate"`
}

func cloneStrings(src []string) []string {
	if len(src) == 0 {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
