package auth

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/sakif/lendpal/internal/apperror"
)

// =========================================================================
// HELPER
// =========================================================================

func mustSalt(t *testing.T, ps *PasswordService) []byte {
	t.Helper()
	salt, err := ps.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	return salt
}

// =========================================================================
// GenerateSalt TESTS
// =========================================================================

func TestGenerateSalt_Size(t *testing.T) {
	salt := mustSalt(t, NewPasswordService())
	if len(salt) != SaltSize {
		t.Fatalf("len(salt) = %d, want %d", len(salt), SaltSize)
	}
}

func TestGenerateSalt_Random(t *testing.T) {
	ps := NewPasswordService()
	a := mustSalt(t, ps)
	b := mustSalt(t, ps)
	if bytes.Equal(a, b) {
		t.Error("GenerateSalt() returned the same salt twice")
	}
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_LooksLikeHexSHA256(t *testing.T) {
	ps := NewPasswordService()

	hash, err := ps.Hash("Tullepassord", mustSalt(t, ps))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(hash) != 64 {
		t.Errorf("len(hash) = %d, want 64", len(hash))
	}
	if _, err := hex.DecodeString(hash); err != nil {
		t.Errorf("Hash() is not hex: %v", err)
	}
}

func TestHash_KnownVector(t *testing.T) {
	ps := NewPasswordService()

	// sha256("abc") with an empty salt
	got, err := ps.Hash("abc", nil)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Hash() = %s, want %s", got, want)
	}
}

func TestHash_Deterministic(t *testing.T) {
	ps := NewPasswordService()
	salt := mustSalt(t, ps)

	h1, _ := ps.Hash("same-password", salt)
	h2, _ := ps.Hash("same-password", salt)

	if h1 != h2 {
		t.Errorf("Hash() not deterministic: %s != %s", h1, h2)
	}
}

func TestHash_InputsChangeOutput(t *testing.T) {
	ps := NewPasswordService()
	saltA := mustSalt(t, ps)
	saltB := mustSalt(t, ps)

	base, _ := ps.Hash("password", saltA)
	otherPassword, _ := ps.Hash("passwore", saltA)
	otherSalt, _ := ps.Hash("password", saltB)

	if base == otherPassword {
		t.Error("changing the password did not change the hash")
	}
	if base == otherSalt {
		t.Error("changing the salt did not change the hash")
	}
}

func TestHash_UnavailablePrimitive(t *testing.T) {
	ps := newPasswordServiceWithHash(0)

	hash, err := ps.Hash("password", []byte("salt"))
	if err == nil {
		t.Fatal("Hash() should fail when the primitive is unavailable")
	}
	if !errors.Is(err, apperror.ErrCryptoUnavailable) {
		t.Errorf("Hash() error = %v, want ErrCryptoUnavailable", err)
	}
	if hash != "" {
		t.Errorf("Hash() = %q, want empty on failure", hash)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify(t *testing.T) {
	ps := NewPasswordService()
	salt := mustSalt(t, ps)
	stored, err := ps.Hash("correct-horse-battery-staple", salt)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	cases := []struct {
		name      string
		candidate string
		salt      []byte
		stored    string
		want      bool
	}{
		{"correct password", "correct-horse-battery-staple", salt, stored, true},
		{"wrong password", "correct-horse-battery-stapler", salt, stored, false},
		{"empty password", "", salt, stored, false},
		{"wrong salt", "correct-horse-battery-staple", []byte("other-salt-16byt"), stored, false},
		{"empty stored hash", "", nil, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ps.Verify(tc.candidate, tc.stored, tc.salt); got != tc.want {
				t.Errorf("Verify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVerify_UnavailablePrimitiveNeverMatches(t *testing.T) {
	ps := newPasswordServiceWithHash(0)
	if ps.Verify("x", "anything", nil) {
		t.Error("Verify() should be false when hashing is unavailable")
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := NewPasswordService()

	cases := []struct {
		name     string
		password string
	}{
		{"simple alphanumeric", "hello123"},
		{"special characters", "p@$$w0rd!#%"},
		{"unicode", "Grønn-пароль-密码"},
		{"whitespace", "  leading and trailing  "},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			salt := mustSalt(t, ps)
			hash, err := ps.Hash(tc.password, salt)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", tc.password, err)
			}
			if !ps.Verify(tc.password, hash, salt) {
				t.Errorf("Verify() failed for %q", tc.password)
			}
		})
	}
}
