package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingSigningKey = errors.New("auth: missing signing key")
	ErrInvalidTTL        = errors.New("auth: token ttl must be at least one second")
)

const (
	AlgorithmHS256  = "HS256"
	TokenType       = "JWT"
	DefaultTokenTTL = 24 * time.Hour

	// MinSecretLength is the minimum recommended secret length for HMAC-SHA256.
	MinSecretLength = 32

	segmentSeparator = "."
)

// Segment encodings. StdSegmentEncoding is the default wire format.
// RawURLSegmentEncoding produces tokens that standard JWT libraries accept.
var (
	StdSegmentEncoding    = base64.StdEncoding
	RawURLSegmentEncoding = base64.RawURLEncoding
)

// TokenCodec signs and verifies the three-segment token wire format.
type TokenCodec struct {
	secret []byte
	enc    *base64.Encoding
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithSegmentEncoding overrides the base64 alphabet used for every segment.
func WithSegmentEncoding(enc *base64.Encoding) CodecOption {
	return func(c *TokenCodec) {
		if enc != nil {
			c.enc = enc
		}
	}
}

// WithTokenTTL sets the lifetime of minted tokens.
func WithTokenTTL(d time.Duration) CodecOption {
	return func(c *TokenCodec) {
		c.ttl = d
	}
}

// WithCodecClock injects a deterministic clock.
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec builds an HMAC-SHA256 codec around secret.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSigningKey
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		enc:    StdSegmentEncoding,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.ttl < time.Second {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidTTL, c.ttl)
	}
	return c, nil
}

// TTL returns the configured token lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Mint stamps iat/exp onto claims and serializes a signed token.
func (c *TokenCodec) Mint(claims Payload) (Token, error) {
	now := c.now().Unix()
	payload := Payload{
		Username:  claims.Username,
		Roles:     cloneStrings(claims.Roles),
		Email:     claims.Email,
		IssuedAt:  now,
		ExpiresAt: now + int64(c.ttl/time.Second),
	}
	if payload.Roles == nil {
		payload.Roles = []string{}
	}
	header := Header{Algorithm: AlgorithmHS256, Type: TokenType}

	headerSeg, err := c.encodeSegment(header)
	if err != nil {
		return Token{}, err
	}
	payloadSeg, err := c.encodeSegment(payload)
	if err != nil {
		return Token{}, err
	}
	signingInput := headerSeg + segmentSeparator + payloadSeg

	return Token{
		Raw:     signingInput + segmentSeparator + c.sign(signingInput),
		Header:  header,
		Payload: payload,
	}, nil
}

// Decode checks structure, signature and expiry at the given instant.
// Revocation is the caller's concern.
func (c *TokenCodec) Decode(raw string, at time.Time) (Payload, error) {
	parts := strings.Split(raw, segmentSeparator)
	if len(parts) != 3 {
		return Payload{}, ErrTokenMalformed
	}

	expected := c.sign(parts[0] + segmentSeparator + parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return Payload{}, ErrTokenSignature
	}

	var header Header
	if err := c.decodeSegment(parts[0], &header); err != nil || header.Algorithm != AlgorithmHS256 {
		return Payload{}, ErrTokenMalformed
	}

	var payload Payload
	if err := c.decodeSegment(parts[1], &payload); err != nil {
		return Payload{}, ErrTokenMalformed
	}

	if payload.Expired(at) {
		return Payload{}, ErrTokenExpired
	}
	return payload, nil
}

// Peek decodes the payload segment without checking the signature.
// Only use it for bookkeeping, never for authorization.
func (c *TokenCodec) Peek(raw string) (Payload, error) {
	parts := strings.Split(raw, segmentSeparator)
	if len(parts) != 3 {
		return Payload{}, ErrTokenMalformed
	}
	var payload Payload
	if err := c.decodeSegment(parts[1], &payload); err != nil {
		return Payload{}, ErrTokenMalformed
	}
	return payload, nil
}

func (c *TokenCodec) sign(input string) string {
	mac := hmac.New(sha256.New, c.secret)
	_, _ = mac.Write([]byte(input))
	return c.enc.EncodeToString(mac.Sum(nil))
}

func (c *TokenCodec) encodeSegment(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return c.enc.EncodeToString(data), nil
}

func (c *TokenCodec) decodeSegment(segment string, dest any) error {
	data, err := c.enc.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
