package security

import (
	"bytes"
	"crypto/rand"
	"testing"
	"time"
)

func mustKey(t testing.TB) []byte {
	t.Helper()
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return key
}

func TestEncryptAuthenticatedRoundTripLengths(t *testing.T) {
	key := mustKey(t)
	for _, n := range []int{0, 1, 15, 16, 17, 255, 4096, 10000} {
		plain := make([]byte, n)
		if _, err := rand.Read(plain); err != nil {
			t.Fatalf("rand: %v", err)
		}
		sealed, err := EncryptAuthenticated(plain, key)
		if err != nil {
			t.Fatalf("encrypt len=%d: %v", n, err)
		}
		if len(sealed.IV) != 12 || len(sealed.Tag) != 16 {
			t.Fatalf("unexpected iv/tag sizes: %d/%d", len(sealed.IV), len(sealed.Tag))
		}
		got, err := DecryptAuthenticated(sealed, key)
		if err != nil {
			t.Fatalf("decrypt len=%d: %v", n, err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatalf("round trip mismatch at len=%d", n)
		}
	}
}

func TestEncryptAuthenticatedFreshIVPerCall(t *testing.T) {
	key := mustKey(t)
	a, err := EncryptAuthenticated([]byte("same"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := EncryptAuthenticated([]byte("same"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Fatal("expected distinct IVs")
	}
}

func TestDecryptAuthenticatedFailsClosed(t *testing.T) {
	key := mustKey(t)
	sealed, err := EncryptAuthenticated([]byte("license payload"), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptAuthenticated(sealed, mustKey(t)); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed for wrong key, got %v", err)
	}

	tampered := *sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01
	if _, err := DecryptAuthenticated(&tampered, key); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed for tampered ciphertext, got %v", err)
	}

	badTag := *sealed
	badTag.Tag = append([]byte(nil), sealed.Tag...)
	badTag.Tag[15] ^= 0x80
	if _, err := DecryptAuthenticated(&badTag, key); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed for tampered tag, got %v", err)
	}

	if _, err := DecryptAuthenticated(&SealedPayload{IV: []byte{1}}, key); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed for short iv, got %v", err)
	}
}

func FuzzEncryptAuthenticatedRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte("hello"))
	f.Add(bytes.Repeat([]byte{0xff}, 1024))
	key := mustKey(f)
	f.Fuzz(func(t *testing.T, plain []byte) {
		if len(plain) > 10000 {
			plain = plain[:10000]
		}
		sealed, err := EncryptAuthenticated(plain, key)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		got, err := DecryptAuthenticated(sealed, key)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(got, plain) {
			t.Fatal("round trip mismatch")
		}
	})
}

func TestSignVerify(t *testing.T) {
	sig := Sign("payload", "secret")
	if !Verify("payload", sig, "secret") {
		t.Fatal("expected signature to verify")
	}
	if Verify("payload2", sig, "secret") {
		t.Fatal("expected signature over different data to fail")
	}
	if Verify("payload", sig, "other") {
		t.Fatal("expected signature with different secret to fail")
	}
	if Verify("payload", "%%%not-base64", "secret") {
		t.Fatal("expected malformed signature to fail")
	}
}

func TestIsTimestampFresh(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		ts   time.Time
		want bool
	}{
		{name: "now", ts: now, want: true},
		{name: "4m past", ts: now.Add(-4 * time.Minute), want: true},
		{name: "5m future boundary", ts: now.Add(5 * time.Minute), want: true},
		{name: "6m past", ts: now.Add(-6 * time.Minute), want: false},
		{name: "6m future", ts: now.Add(6 * time.Minute), want: false},
	}
	for _, tc := range tests {
		if got := IsTimestampFresh(tc.ts, now); got != tc.want {
			t.Fatalf("%s: IsTimestampFresh = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSignedEnvelopeStaleCheckedBeforeSignature(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	env, err := BuildSignedEnvelope(`{"op":"ping"}`, "secret", now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := VerifySignedEnvelope(env, "secret", now.Add(time.Minute)); err != nil {
		t.Fatalf("expected fresh envelope to verify, got %v", err)
	}
	if err := VerifySignedEnvelope(env, "wrong", now); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	// stale and badly signed: staleness wins
	if err := VerifySignedEnvelope(env, "wrong", now.Add(10*time.Minute)); err != ErrStaleTimestamp {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}
}

func TestRandomHelpers(t *testing.T) {
	a, err := SecureRandom(16)
	if err != nil || len(a) != 32 {
		t.Fatalf("expected 32 hex chars, got %q (%v)", a, err)
	}
	b, _ := SecureRandom(16)
	if a == b {
		t.Fatal("expected distinct random values")
	}
	if Hash("abc") != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatal("unexpected sha256 digest")
	}
	if HashOpaqueToken("tok", "p1") == HashOpaqueToken("tok", "p2") {
		t.Fatal("expected pepper to change token hash")
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("expected hash to differ from plaintext")
	}
	if !h.Verify(hash, "correct horse battery") {
		t.Fatal("expected password to verify")
	}
	if h.Verify(hash, "wrong horse battery") {
		t.Fatal("expected wrong password to fail")
	}
	if NewPasswordHasher(0).cost != DefaultPasswordCost {
		t.Fatal("expected invalid cost to fall back to default")
	}
}
