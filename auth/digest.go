package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSecretMismatch     = errors.New("auth: secret does not match")
	ErrDigestAlgorithm    = errors.New("auth: unsupported digest algorithm")
	ErrDigestInvalid      = errors.New("auth: invalid secret digest")
	ErrDigestSecretLength = errors.New("auth: secret too long for digest")
)

const (
	DigestSHA256   = "sha256"
	DigestBcrypt   = "bcrypt"
	DigestArgon2id = "argon2id"
)

const (
	DefaultBcryptCost    = 12
	DefaultArgon2Time    = 3
	DefaultArgon2Memory  = 64 * 1024 // KiB
	DefaultArgon2Threads = 2
	DefaultArgon2KeyLen  = 32
	DefaultSaltLength    = 16
)

// NewDigester returns the digester registered under name with default parameters.
func NewDigester(name string) (SecretDigester, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DigestArgon2id:
		return NewArgon2idDigester(), nil
	case DigestBcrypt:
		return NewBcryptDigester(), nil
	case DigestSHA256:
		return SHA256Digester{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrDigestAlgorithm, name)
	}
}

// NewPepperedDigester is NewDigester with a server-side pepper mixed into every
// secret. The sha256 digester has no pepper support.
func NewPepperedDigester(name string, pepper []byte) (SecretDigester, error) {
	if len(pepper) == 0 {
		return NewDigester(name)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DigestArgon2id:
		return NewArgon2idDigester(WithArgon2Pepper(pepper)), nil
	case DigestBcrypt:
		return NewBcryptDigester(WithBcryptPepper(pepper)), nil
	default:
		return nil, fmt.Errorf("%w: %q does not take a pepper", ErrDigestAlgorithm, name)
	}
}

// SHA256Digester is an unsalted hex SHA-256 digest, kept for compatibility
// with legacy account data. Prefer Argon2idDigester.
type SHA256Digester struct {
	Now func() time.Time
}

func (d SHA256Digester) Digest(ctx context.Context, secret []byte) (SecretDigest, error) {
	if err := contextError(ctx); err != nil {
		return SecretDigest{}, err
	}
	sum := sha256.Sum256(secret)
	return SecretDigest{
		Algorithm: DigestSHA256,
		Value:     []byte(hex.EncodeToString(sum[:])),
		CreatedAt: nowOr(d.Now),
	}, nil
}

func (d SHA256Digester) Compare(ctx context.Context, secret []byte, digest SecretDigest) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if digest.Algorithm != DigestSHA256 {
		return ErrDigestAlgorithm
	}
	sum := sha256.Sum256(secret)
	computed := []byte(hex.EncodeToString(sum[:]))
	if subtle.ConstantTimeCompare(computed, digest.Value) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

// BcryptDigester implements SecretDigester using bcrypt.
type BcryptDigester struct {
	cost   int
	pepper []byte
	now    func() time.Time
}

// BcryptOption configures BcryptDigester.
type BcryptOption func(*BcryptDigester)

// WithBcryptCost sets the bcrypt cost factor.
func WithBcryptCost(cost int) BcryptOption {
	return func(d *BcryptDigester) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			d.cost = cost
		}
	}
}

// WithBcryptPepper sets a server-side secret appended to every secret.
func WithBcryptPepper(pepper []byte) BcryptOption {
	return func(d *BcryptDigester) {
		d.pepper = append([]byte(nil), pepper...)
	}
}

func NewBcryptDigester(opts ...BcryptOption) *BcryptDigester {
	d := &BcryptDigester{cost: DefaultBcryptCost, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *BcryptDigester) Digest(ctx context.Context, secret []byte) (SecretDigest, error) {
	if err := contextError(ctx); err != nil {
		return SecretDigest{}, err
	}
	combined := withPepper(secret, d.pepper)
	defer clearBytes(combined)

	hashed, err := bcrypt.GenerateFromPassword(combined, d.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return SecretDigest{}, ErrDigestSecretLength
		}
		return SecretDigest{}, fmt.Errorf("auth: bcrypt digest: %w", err)
	}
	return SecretDigest{Algorithm: DigestBcrypt, Value: hashed, CreatedAt: d.now()}, nil
}

func (d *BcryptDigester) Compare(ctx context.Context, secret []byte, digest SecretDigest) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if digest.Algorithm != DigestBcrypt {
		return ErrDigestAlgorithm
	}
	if len(digest.Value) == 0 {
		return ErrDigestInvalid
	}
	combined := withPepper(secret, d.pepper)
	defer clearBytes(combined)

	if err := bcrypt.CompareHashAndPassword(digest.Value, combined); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrSecretMismatch
		}
		return fmt.Errorf("auth: bcrypt compare: %w", err)
	}
	return nil
}

// Argon2idDigester implements SecretDigester using salted Argon2id. Parameters
// and salt travel inside the encoded value, so they can change without
// invalidating stored digests.
type Argon2idDigester struct {
	time       uint32
	memory     uint32
	threads    uint8
	keyLen     uint32
	saltLength int
	pepper     []byte
	now        func() time.Time
}

// Argon2idOption configures Argon2idDigester.
type Argon2idOption func(*Argon2idDigester)

// WithArgon2Params sets iterations, memory (KiB) and parallelism. Zero values keep the defaults.
func WithArgon2Params(iterations, memory uint32, threads uint8) Argon2idOption {
	return func(d *Argon2idDigester) {
		if iterations > 0 {
			d.time = iterations
		}
		if memory > 0 {
			d.memory = memory
		}
		if threads > 0 {
			d.threads = threads
		}
	}
}

// WithArgon2Pepper sets a server-side secret appended to every secret.
func WithArgon2Pepper(pepper []byte) Argon2idOption {
	return func(d *Argon2idDigester) {
		d.pepper = append([]byte(nil), pepper...)
	}
}

func NewArgon2idDigester(opts ...Argon2idOption) *Argon2idDigester {
	d := &Argon2idDigester{
		time:       DefaultArgon2Time,
		memory:     DefaultArgon2Memory,
		threads:    DefaultArgon2Threads,
		keyLen:     DefaultArgon2KeyLen,
		saltLength: DefaultSaltLength,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

func (d *Argon2idDigester) Digest(ctx context.Context, secret []byte) (SecretDigest, error) {
	if err := contextError(ctx); err != nil {
		return SecretDigest{}, err
	}
	salt := make([]byte, d.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return SecretDigest{}, fmt.Errorf("auth: generate salt: %w", err)
	}
	combined := withPepper(secret, d.pepper)
	defer clearBytes(combined)

	key := argon2.IDKey(combined, salt, d.time, d.memory, d.threads, d.keyLen)
	// $argon2id$v=19$m=MEMORY,t=TIME,p=THREADS$SALT$KEY
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, d.memory, d.time, d.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	return SecretDigest{Algorithm: DigestArgon2id, Value: []byte(encoded), CreatedAt: d.now()}, nil
}

func (d *Argon2idDigester) Compare(ctx context.Context, secret []byte, digest SecretDigest) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	if digest.Algorithm != DigestArgon2id {
		return ErrDigestAlgorithm
	}
	params, salt, key, err := decodeArgon2id(digest.Value)
	if err != nil {
		return err
	}
	combined := withPepper(secret, d.pepper)
	defer clearBytes(combined)

	computed := argon2.IDKey(combined, salt, params.time, params.memory, params.threads, uint32(len(key)))
	if subtle.ConstantTimeCompare(computed, key) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodeArgon2id(encoded []byte) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 || parts[1] != DigestArgon2id {
		return argon2Params{}, nil, nil, ErrDigestInvalid
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Params{}, nil, nil, ErrDigestInvalid
	}
	var p argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argon2Params{}, nil, nil, ErrDigestInvalid
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, nil, nil, ErrDigestInvalid
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return argon2Params{}, nil, nil, ErrDigestInvalid
	}
	return p, salt, key, nil
}

func withPepper(secret, pepper []byte) []byte {
	combined := make([]byte, 0, len(secret)+len(pepper))
	combined = append(combined, secret...)
	return append(combined, pepper...)
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func nowOr(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
