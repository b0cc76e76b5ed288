package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/auth"
)

// Registry is the aggregate root: every user, every catalogued item and,
// through the users' loan maps, every loan.
//
// INVARIANTS:
//   - at most one user holds a given item ID
//   - AddNewUser never admits a duplicate email (AddUser does not check)
//   - a failing operation leaves the registry unchanged
//
// Lookups scan the user list linearly and return the first match.
type Registry struct {
	users []*User
	items map[string]*Item

	now       func() time.Time
	passwords *auth.PasswordService
}

// RegistryOption customises NewRegistry.
type RegistryOption func(*Registry)

// WithClock replaces time.Now for due-date computation.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRegistryPasswords makes AddNewUser hash with ps.
func WithRegistryPasswords(ps *auth.PasswordService) RegistryOption {
	return func(r *Registry) { r.passwords = ps }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		items:     make(map[string]*Item),
		now:       time.Now,
		passwords: auth.DefaultPasswordService(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Loan is one checked-out item: who holds it and when it is due back.
type Loan struct {
	UserID string
	ItemID string
	DueAt  time.Time
}

// Overdue reports whether the loan was due before at.
func (l Loan) Overdue(at time.Time) bool {
	return l.DueAt.Before(at)
}

// =========================================================================
// USERS
// =========================================================================

// AddUser appends u. No uniqueness check happens here; callers that need
// one go through AddNewUser.
func (r *Registry) AddUser(u *User) {
	r.users = append(r.users, u)
}

// AddNewUser registers a user after checking that email is unused and that
// both password fields agree. Errors: ErrDuplicateEmail, ErrPasswordMismatch,
// ErrEmailInvalid, ErrCryptoUnavailable.
func (r *Registry) AddNewUser(firstName, lastName, email, password, passwordConfirm string) (*User, error) {
	if r.ContainsUserWithEmail(email) {
		return nil, apperror.DuplicateEmail(email)
	}
	if password != passwordConfirm {
		return nil, apperror.PasswordMismatch()
	}

	u, err := NewUser(firstName, lastName, email, password, WithPasswordService(r.passwords))
	if err != nil {
		return nil, err
	}
	r.AddUser(u)
	return u, nil
}

// RemoveUser removes the user with userID. A user who still holds items
// cannot be removed; their loans have to be returned first.
func (r *Registry) RemoveUser(userID string) error {
	i := r.userIndex(userID)
	if i < 0 {
		return apperror.InvalidReference("user", userID)
	}
	if n := r.users[i].LoanCount(); n > 0 {
		return apperror.LoansOutstanding(userID, n)
	}
	r.users = slices.Delete(r.users, i, i+1)
	return nil
}

func (r *Registry) userIndex(userID string) int {
	return slices.IndexFunc(r.users, func(u *User) bool { return u.ID == userID })
}

// ContainsUser reports whether a user with userID is registered.
func (r *Registry) ContainsUser(userID string) bool {
	return r.userIndex(userID) >= 0
}

// User looks up a user by ID.
func (r *Registry) User(userID string) (*User, bool) {
	if i := r.userIndex(userID); i >= 0 {
		return r.users[i], true
	}
	return nil, false
}

// UserByEmail does a case-sensitive first-match lookup.
func (r *Registry) UserByEmail(email string) (*User, bool) {
	for _, u := range r.users {
		if u.email == email {
			return u, true
		}
	}
	return nil, false
}

// ContainsUserWithEmail reports whether any user has exactly this email.
func (r *Registry) ContainsUserWithEmail(email string) bool {
	_, ok := r.UserByEmail(email)
	return ok
}

// Users returns the users in insertion order. The slice is a copy; the
// users are not.
func (r *Registry) Users() []*User {
	return slices.Clone(r.users)
}

// UserCount is the number of registered users.
func (r *Registry) UserCount() int { return len(r.users) }

// CheckUserCredentials is false for an unknown email as well as for a wrong
// password.
func (r *Registry) CheckUserCredentials(email, password string) bool {
	u, ok := r.UserByEmail(email)
	if !ok {
		return false
	}
	return u.CheckPassword(password)
}

// =========================================================================
// ITEMS
// =========================================================================

// AddItem puts item into the catalog under its ID, replacing any item that
// already has that ID. The item's lend period must be positive.
func (r *Registry) AddItem(item *Item) error {
	if item == nil || item.ID == "" {
		return apperror.ValidationFailed("id", "item id is required")
	}
	if !item.DefaultLendTime.Positive() {
		return apperror.ValidationFailed("defaultLendTime", "lend period must be positive")
	}
	r.items[item.ID] = item
	return nil
}

// RemoveItem deletes an item from the catalog. An item that is on loan
// cannot be removed.
func (r *Registry) RemoveItem(itemID string) error {
	if _, ok := r.items[itemID]; !ok {
		return apperror.InvalidReference("item", itemID)
	}
	if holder, ok := r.ItemHolder(itemID); ok {
		return apperror.ItemOnLoan(itemID, holder.ID)
	}
	delete(r.items, itemID)
	return nil
}

// Item looks up a catalog item by ID.
func (r *Registry) Item(itemID string) (*Item, bool) {
	item, ok := r.items[itemID]
	return item, ok
}

// AllItems returns a copy of the catalog keyed by item ID.
func (r *Registry) AllItems() map[string]*Item {
	return maps.Clone(r.items)
}

// ItemCount is the number of catalog items.
func (r *Registry) ItemCount() int { return len(r.items) }

// DefaultLendTime returns the lend period of an item.
func (r *Registry) DefaultLendTime(itemID string) (LendPeriod, error) {
	item, ok := r.items[itemID]
	if !ok {
		return LendPeriod{}, apperror.InvalidReference("item", itemID)
	}
	return item.DefaultLendTime, nil
}

// ReturnDateFromNow is the registry clock's current time plus the item's
// default period. It is recomputed on every call.
func (r *Registry) ReturnDateFromNow(itemID string) (time.Time, error) {
	period, err := r.DefaultLendTime(itemID)
	if err != nil {
		return time.Time{}, err
	}
	return period.AddTo(r.now()), nil
}

// =========================================================================
// LOANS
// =========================================================================

// ItemHolder returns the user whose loan map contains itemID.
func (r *Registry) ItemHolder(itemID string) (*User, bool) {
	for _, u := range r.users {
		if u.HasItem(itemID) {
			return u, true
		}
	}
	return nil, false
}

// IsItemLent reports whether some user holds the item.
func (r *Registry) IsItemLent(itemID string) bool {
	_, ok := r.ItemHolder(itemID)
	return ok
}

// LentItems returns a copy of the loan map of userID.
func (r *Registry) LentItems(userID string) (map[string]time.Time, error) {
	u, ok := r.User(userID)
	if !ok {
		return nil, apperror.InvalidReference("user", userID)
	}
	return u.LentItems(), nil
}

// LendItem checks itemID out to userID with a due date of now plus the
// item's default period and returns that due date.
//
// Both identifiers must be registered (ErrInvalidReference). An item held
// by another user is rejected (ErrOnLoan); lending to the current holder
// again renews the due date.
func (r *Registry) LendItem(userID, itemID string) (time.Time, error) {
	u, ok := r.User(userID)
	if !ok {
		return time.Time{}, apperror.InvalidReference("user", userID)
	}
	if _, ok := r.items[itemID]; !ok {
		return time.Time{}, apperror.InvalidReference("item", itemID)
	}
	if holder, ok := r.ItemHolder(itemID); ok && holder.ID != u.ID {
		return time.Time{}, apperror.ItemOnLoan(itemID, holder.ID)
	}

	due, err := r.ReturnDateFromNow(itemID)
	if err != nil {
		return time.Time{}, err
	}
	u.LendItem(itemID, due)
	return due, nil
}

// ReturnItem ends the loan of itemID by userID. It fails with
// ErrInvalidReference if the user is unknown or does not hold the item.
func (r *Registry) ReturnItem(userID, itemID string) error {
	u, ok := r.User(userID)
	if !ok {
		return apperror.InvalidReference("user", userID)
	}
	if !u.ReturnItem(itemID) {
		return apperror.InvalidReference("loan", itemID)
	}
	return nil
}

// Loans lists every outstanding loan ordered by due date, then item ID.
func (r *Registry) Loans() []Loan {
	var loans []Loan
	for _, u := range r.users {
		for itemID, due := range u.loans {
			loans = append(loans, Loan{UserID: u.ID, ItemID: itemID, DueAt: due})
		}
	}
	slices.SortFunc(loans, func(a, b Loan) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return loans
}

// OverdueLoans lists the loans that were due before at.
func (r *Registry) OverdueLoans(at time.Time) []Loan {
	var overdue []Loan
	for _, l := range r.Loans() {
		if l.Overdue(at) {
			overdue = append(overdue, l)
		}
	}
	return overdue
}

// =========================================================================
// RESTORE
// =========================================================================

// RestoreRegistry assembles a registry from already-built users and items,
// rejecting input that breaks an invariant: duplicate user IDs, duplicate
// item IDs, a non-positive lend period, loans of unknown items, or an item
// held by two users.
//
// Emails are not checked. AddUser admits duplicates and UserByEmail
// resolves them by first match, so any saved registry loads back.
func RestoreRegistry(users []*User, items []*Item, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(opts...)

	for _, item := range items {
		if item == nil || item.ID == "" {
			return nil, apperror.ValidationFailed("id", "item id is required")
		}
		if _, dup := r.items[item.ID]; dup {
			return nil, apperror.Conflict("item", item.ID)
		}
		if !item.DefaultLendTime.Positive() {
			return nil, fmt.Errorf("model: item %s: %w", item.ID,
				apperror.ValidationFailed("defaultLendTime", "lend period must be positive"))
		}
		r.items[item.ID] = item
	}

	ids := make(map[string]struct{}, len(users))
	holders := make(map[string]string)
	for _, u := range users {
		if _, dup := ids[u.ID]; dup {
			return nil, apperror.Conflict("user", u.ID)
		}
		ids[u.ID] = struct{}{}

		for itemID := range u.loans {
			if _, ok := r.items[itemID]; !ok {
				return nil, fmt.Errorf("model: user %s: %w", u.ID, apperror.InvalidReference("item", itemID))
			}
			if other, held := holders[itemID]; held {
				return nil, apperror.ItemOnLoan(itemID, other)
			}
			holders[itemID] = u.ID
		}
		if u.passwords == nil {
			u.passwords = r.passwords
		}
		r.users = append(r.users, u)
	}

	return r, nil
}
