package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() *Argon2idDigester {
	return NewArgon2idDigester(WithArgon2Params(1, 8*1024, 1))
}

func TestDigestersRoundTrip(t *testing.T) {
	ctx := context.Background()
	digesters := map[string]SecretDigester{
		DigestSHA256:   SHA256Digester{},
		DigestBcrypt:   NewBcryptDigester(WithBcryptCost(bcrypt.MinCost)),
		DigestArgon2id: fastArgon2(),
	}
	for name, d := range digesters {
		t.Run(name, func(t *testing.T) {
			digest, err := d.Digest(ctx, []byte("pw123"))
			if err != nil {
				t.Fatalf("Digest: %v", err)
			}
			if digest.Algorithm != name {
				t.Fatalf("algorithm = %q, want %q", digest.Algorithm, name)
			}
			if bytes.Contains(digest.Value, []byte("pw123")) {
				t.Fatalf("digest leaks the secret")
			}
			if err := d.Compare(ctx, []byte("pw123"), digest); err != nil {
				t.Fatalf("Compare with correct secret: %v", err)
			}
			if err := d.Compare(ctx, []byte("pw124"), digest); !errors.Is(err, ErrSecretMismatch) {
				t.Fatalf("expected ErrSecretMismatch, got %v", err)
			}
		})
	}
}

func TestSHA256DigestMatchesReference(t *testing.T) {
	digest, err := SHA256Digester{}.Digest(context.Background(), []byte("admin123"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	const want = "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9"
	if string(digest.Value) != want {
		t.Fatalf("digest = %s, want %s", digest.Value, want)
	}
}

func TestArgon2idDigestIsSalted(t *testing.T) {
	d := fastArgon2()
	a, err := d.Digest(context.Background(), []byte("same"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	b, err := d.Digest(context.Background(), []byte("same"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if bytes.Equal(a.Value, b.Value) {
		t.Fatalf("expected distinct digests for the same secret")
	}
	if !strings.HasPrefix(string(a.Value), "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %s", a.Value)
	}
}

func TestArgon2idCompareUsesStoredParams(t *testing.T) {
	ctx := context.Background()
	digest, err := fastArgon2().Digest(ctx, []byte("secret"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	// A digester with different defaults must still verify older digests.
	if err := NewArgon2idDigester(WithArgon2Params(2, 16*1024, 2)).Compare(ctx, []byte("secret"), digest); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestPepperChangesDigest(t *testing.T) {
	ctx := context.Background()
	peppered := NewArgon2idDigester(WithArgon2Params(1, 8*1024, 1), WithArgon2Pepper([]byte("pepper")))
	digest, err := peppered.Digest(ctx, []byte("secret"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if err := fastArgon2().Compare(ctx, []byte("secret"), digest); !errors.Is(err, ErrSecretMismatch) {
		t.Fatalf("expected mismatch without pepper, got %v", err)
	}
	if err := peppered.Compare(ctx, []byte("secret"), digest); err != nil {
		t.Fatalf("Compare with pepper: %v", err)
	}
}

func TestCompareRejectsForeignAlgorithm(t *testing.T) {
	ctx := context.Background()
	digest, err := SHA256Digester{}.Digest(ctx, []byte("x"))
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if err := fastArgon2().Compare(ctx, []byte("x"), digest); !errors.Is(err, ErrDigestAlgorithm) {
		t.Fatalf("expected ErrDigestAlgorithm, got %v", err)
	}
	if err := NewBcryptDigester().Compare(ctx, []byte("x"), digest); !errors.Is(err, ErrDigestAlgorithm) {
		t.Fatalf("expected ErrDigestAlgorithm, got %v", err)
	}
}

func TestArgon2idRejectsCorruptDigest(t *testing.T) {
	corrupt := []string{"", "$argon2id$", "$argon2id$v=19$m=x,t=1,p=1$AA$AA", "$bcrypt$v=19$m=1,t=1,p=1$AA$AA"}
	for _, value := range corrupt {
		err := fastArgon2().Compare(context.Background(), []byte("x"), SecretDigest{Algorithm: DigestArgon2id, Value: []byte(value)})
		if !errors.Is(err, ErrDigestInvalid) {
			t.Fatalf("expected ErrDigestInvalid for %q, got %v", value, err)
		}
	}
}

func TestNewDigester(t *testing.T) {
	for _, name := range []string{"", "argon2id", "BCRYPT", " sha256 "} {
		if _, err := NewDigester(name); err != nil {
			t.Fatalf("NewDigester(%q): %v", name, err)
		}
	}
	if _, err := NewDigester("md5"); !errors.Is(err, ErrDigestAlgorithm) {
		t.Fatalf("expected ErrDigestAlgorithm, got %v", err)
	}
}

func TestDigestHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (SHA256Digester{}).Digest(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewPepperedDigester(t *testing.T) {
	d, err := NewPepperedDigester("bcrypt", []byte("pepper"))
	if err != nil {
		t.Fatalf("NewPepperedDigester: %v", err)
	}
	if _, ok := d.(*BcryptDigester); !ok {
		t.Fatalf("unexpected digester %T", d)
	}
	if _, err := NewPepperedDigester("sha256", []byte("pepper")); !errors.Is(err, ErrDigestAlgorithm) {
		t.Fatalf("expected ErrDigestAlgorithm, got %v", err)
	}
	if _, err := NewPepperedDigester("sha256", nil); err != nil {
		t.Fatalf("sha256 without pepper: %v", err)
	}
}
