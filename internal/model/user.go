// Package model defines the lending domain: users, items, lend periods and
// the Registry aggregate that owns them.
//
// Nothing in this package locks. A Registry belongs to exactly one session
// at a time; the service layer is responsible for serialising access.
package model

import (
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/auth"
)

// emailPattern accepts local-part@domain with a word/punctuation local part,
// dot-separated domain labels and a 2–6 letter TLD. It is not RFC 5322 and
// is not meant to be.
var emailPattern = regexp.MustCompile(
	"(?i)^[\\w!#$%&'*+/=?`{|}~^-]+(?:\\.[\\w!#$%&'*+/=?`{|}~^-]+)*@(?:[a-z0-9-]+\\.)+[a-z]{2,6}$",
)

// ValidEmail reports whether email has an acceptable shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// User is a registered person who may borrow items.
//
// email, the credential pair and the loan map are unexported: email has to
// pass ValidEmail on every write, the salt/hash pair is fixed at creation,
// and loans may only change through LendItem/ReturnItem.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Privilege Privilege

	email        string
	passwordHash string
	salt         []byte

	// itemID -> due instant
	loans map[string]time.Time

	passwords *auth.PasswordService
}

// UserOption customises NewUser.
type UserOption func(*User)

// WithPrivilege overrides the default Member privilege.
func WithPrivilege(p Privilege) UserOption {
	return func(u *User) { u.Privilege = p }
}

// WithPasswordService hashes with ps instead of the shared SHA-256 service.
func WithPasswordService(ps *auth.PasswordService) UserOption {
	return func(u *User) { u.passwords = ps }
}

// NewUser validates email, generates a salt and hashes password.
//
// Fails with apperror.ErrEmailInvalid or apperror.ErrCryptoUnavailable; in
// both cases no user is returned.
func NewUser(firstName, lastName, email, password string, opts ...UserOption) (*User, error) {
	if !ValidEmail(email) {
		return nil, apperror.EmailInvalid(email)
	}

	u := &User{
		ID:        xid.New().String(),
		FirstName: firstName,
		LastName:  lastName,
		Privilege: Member,
		email:     email,
		loans:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(u)
	}

	ps := u.passwordService()
	salt, err := ps.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("model: creating user: %w", err)
	}
	hash, err := ps.Hash(password, salt)
	if err != nil {
		return nil, fmt.Errorf("model: creating user: %w", err)
	}
	u.salt = salt
	u.passwordHash = hash

	return u, nil
}

func (u *User) passwordService() *auth.PasswordService {
	if u.passwords == nil {
		return auth.DefaultPasswordService()
	}
	return u.passwords
}

// Email is the address the user logs in with.
func (u *User) Email() string { return u.email }

// SetEmail replaces the email. On failure the previous email is kept.
func (u *User) SetEmail(email string) error {
	if !ValidEmail(email) {
		return apperror.EmailInvalid(email)
	}
	u.email = email
	return nil
}

// PasswordHash returns the hex digest of salt||password.
func (u *User) PasswordHash() string { return u.passwordHash }

// Salt returns a copy of the user's salt.
func (u *User) Salt() []byte { return append([]byte(nil), u.salt...) }

// CheckPassword reports whether password matches the stored credentials.
func (u *User) CheckPassword(password string) bool {
	return u.passwordService().Verify(password, u.passwordHash, u.salt)
}

// LendItem records itemID as checked out to u until dueAt, overwriting any
// existing entry. Holder uniqueness across users is the Registry's job.
func (u *User) LendItem(itemID string, dueAt time.Time) {
	if u.loans == nil {
		u.loans = make(map[string]time.Time)
	}
	u.loans[itemID] = dueAt
}

// ReturnItem removes itemID from the loan map and reports whether it was there.
func (u *User) ReturnItem(itemID string) bool {
	if _, ok := u.loans[itemID]; !ok {
		return false
	}
	delete(u.loans, itemID)
	return true
}

// HasItem reports whether the user holds the item.
func (u *User) HasItem(itemID string) bool {
	_, ok := u.loans[itemID]
	return ok
}

// DueAt returns the due instant of a loan held by u.
func (u *User) DueAt(itemID string) (time.Time, bool) {
	due, ok := u.loans[itemID]
	return due, ok
}

// LentItems returns a copy of the loan map.
func (u *User) LentItems() map[string]time.Time {
	out := make(map[string]time.Time, len(u.loans))
	maps.Copy(out, u.loans)
	return out
}

// LoanCount is the number of items currently held.
func (u *User) LoanCount() int { return len(u.loans) }

// String describes the user for logs. It never includes password material.
func (u *User) String() string {
	return fmt.Sprintf("User{id=%s email=%s privilege=%s loans=%d}", u.ID, u.email, u.Privilege, len(u.loans))
}

// UserState is every persisted field of a User. Stores read it with State
// and rebuild users with RestoreUser.
type UserState struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Salt         []byte
	Privilege    Privilege
	LentItems    map[string]time.Time
}

// State snapshots u. The returned value shares nothing with u.
func (u *User) State() UserState {
	return UserState{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.email,
		PasswordHash: u.passwordHash,
		Salt:         u.Salt(),
		Privilege:    u.Privilege,
		LentItems:    u.LentItems(),
	}
}

// RestoreUser rebuilds a user from persisted state. The salt and hash are
// taken as-is; nothing is re-salted or re-hashed.
func RestoreUser(s UserState) (*User, error) {
	if s.ID == "" {
		return nil, apperror.ValidationFailed("id", "user id is required")
	}
	if !ValidEmail(s.Email) {
		return nil, apperror.EmailInvalid(s.Email)
	}
	if s.PasswordHash == "" || len(s.Salt) == 0 {
		return nil, apperror.ValidationFailed("passwordHash", fmt.Sprintf("user %s has no credentials", s.ID))
	}
	if s.Privilege < NonMember || s.Privilege > Administrator {
		return nil, apperror.ValidationFailed("privilege", fmt.Sprintf("user %s has unknown privilege %d", s.ID, int(s.Privilege)))
	}

	u := &User{
		ID:           s.ID,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		Privilege:    s.Privilege,
		email:        s.Email,
		passwordHash: s.PasswordHash,
		salt:         append([]byte(nil), s.Salt...),
		loans:        make(map[string]time.Time, len(s.LentItems)),
	}
	maps.Copy(u.loans, s.LentItems)
	return u, nil
}
