// CREDENTIAL FORMAT:
// Every user carries two pieces of credential material, stored separately:
//
//	salt: 16 random bytes, generated once when the user is created
//	hash: hex(SHA-256(salt || utf8(password)))
//
// The salt is never regenerated, not even when a registry is loaded from
// disk. Re-salting on load would make every stored hash unverifiable.

package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/sakif/lendpal/internal/apperror"

	// Registers crypto.SHA256 so Hash.Available reports true.
	_ "crypto/sha256"
)

// SaltSize is the number of random bytes in a user's salt.
const SaltSize = 16

// PasswordService salts, hashes and verifies passwords.
//
// It's a struct (not free functions) so the hash primitive can be swapped
// in tests, which is the only way to exercise the CryptoUnavailable path.
type PasswordService struct {
	hash crypto.Hash
}

// NewPasswordService creates a PasswordService backed by SHA-256.
func NewPasswordService() *PasswordService {
	return &PasswordService{hash: crypto.SHA256}
}

// newPasswordServiceWithHash creates a PasswordService with a custom primitive.
// Unexported helper used by the tests in this package.
func newPasswordServiceWithHash(h crypto.Hash) *PasswordService {
	return &PasswordService{hash: h}
}

// NewPasswordServiceForTest exposes the hash override to tests in other
// packages (for example to make user creation fail with CryptoUnavailable).
func NewPasswordServiceForTest(h crypto.Hash) *PasswordService {
	return newPasswordServiceWithHash(h)
}

// defaultPasswords is used by callers that do not carry their own service.
var defaultPasswords = NewPasswordService()

// DefaultPasswordService returns the shared SHA-256 PasswordService.
func DefaultPasswordService() *PasswordService {
	return defaultPasswords
}

// GenerateSalt returns SaltSize bytes from crypto/rand.
// A failing random source is reported as CryptoUnavailable.
func (p *PasswordService) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, apperror.CryptoUnavailable(fmt.Errorf("reading random salt: %w", err))
	}
	return salt, nil
}

// Hash returns the hex-encoded digest of salt followed by the UTF-8 bytes
// of password. The same inputs always give the same output.
func (p *PasswordService) Hash(password string, salt []byte) (string, error) {
	if !p.hash.Available() {
		return "", apperror.CryptoUnavailable(fmt.Errorf("hash function %d is not linked into the binary", uint(p.hash)))
	}

	h := p.hash.New()
	h.Write(salt)
	h.Write([]byte(password))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the hash of candidate with salt and compares it with
// storedHash in constant time. Any hashing failure counts as a mismatch.
func (p *PasswordService) Verify(candidate, storedHash string, salt []byte) bool {
	if storedHash == "" {
		return false
	}
	got, err := p.Hash(candidate, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}
