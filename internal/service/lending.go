// Package service is the business layer between the HTTP handlers and the
// domain model:
//
//	Handler (HTTP) → LendingService (one session, autosave) → model.Registry
//	                                                        ↘ repository.Store
//
// The registry has no locks of its own. LendingService owns the single
// registry of a running server and serialises every access to it through
// one mutex, so all HTTP goroutines together behave like one session.
// Reads hand out copies; nothing outside the lock ever sees a *model.User.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/metrics"
	"github.com/sakif/lendpal/internal/model"
	"github.com/sakif/lendpal/internal/repository"
)

// UserProfile is a read-only copy of a user without credential material.
type UserProfile struct {
	ID        string               `json:"id"`
	FirstName string               `json:"firstName"`
	LastName  string               `json:"lastName"`
	Email     string               `json:"email"`
	Privilege model.Privilege      `json:"privilege"`
	LentItems map[string]time.Time `json:"lentItems"`
}

func profileOf(u *model.User) UserProfile {
	return UserProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email(),
		Privilege: u.Privilege,
		LentItems: u.LentItems(),
	}
}

// LendingService implements the data-access contract of the application.
type LendingService struct {
	mu       sync.Mutex
	registry *model.Registry
	store    repository.Store
	logger   *slog.Logger

	autosave      bool
	defaultPeriod model.LendPeriod
	now           func() time.Time
}

type Option func(*LendingService)

// WithAutosave makes every successful mutation write the registry to the
// store before returning.
func WithAutosave(on bool) Option {
	return func(s *LendingService) { s.autosave = on }
}

// WithDefaultPeriod sets the lend period of items added without one.
func WithDefaultPeriod(p model.LendPeriod) Option {
	return func(s *LendingService) {
		if p.Positive() {
			s.defaultPeriod = p
		}
	}
}

// WithClock replaces time.Now for overdue checks. It does not change the
// registry's own clock; pass model.WithClock to Open for that.
func WithClock(now func() time.Time) Option {
	return func(s *LendingService) { s.now = now }
}

// NewLendingService wraps an existing registry.
func NewLendingService(registry *model.Registry, store repository.Store, logger *slog.Logger, opts ...Option) *LendingService {
	s := &LendingService{
		registry:      registry,
		store:         store,
		logger:        logger,
		defaultPeriod: model.DefaultLendPeriod,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.updateGauges()
	return s
}

// Open loads the registry from store. A store that has never been written
// yields an empty registry; any other load failure is returned.
func Open(ctx context.Context, store repository.Store, logger *slog.Logger, registryOpts []model.RegistryOption, opts ...Option) (*LendingService, error) {
	registry, err := store.Load(ctx, registryOpts...)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("no saved registry, starting empty", slog.String("store", store.Location()))
		registry = model.NewRegistry(registryOpts...)
	case err != nil:
		return nil, fmt.Errorf("service: loading registry from %s: %w", store.Location(), err)
	default:
		logger.Info("registry loaded",
			slog.String("store", store.Location()),
			slog.Int("users", registry.UserCount()),
			slog.Int("items", registry.ItemCount()),
		)
	}

	return NewLendingService(registry, store, logger, opts...), nil
}

// =========================================================================
// PERSISTENCE
// =========================================================================

// WriteData saves the whole registry to the store.
func (s *LendingService) WriteData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx)
}

func (s *LendingService) writeLocked(ctx context.Context) error {
	start := time.Now()
	err := s.store.Save(ctx, s.registry)
	metrics.StoreWriteDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.StoreWritesTotal.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		s.logger.Error("registry save failed",
			slog.String("store", s.store.Location()),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Debug("registry saved", slog.String("store", s.store.Location()))
	return nil
}

// committed runs after a successful mutation. The mutation stays in memory
// even if the autosave fails; the error tells the caller that the store is
// behind.
func (s *LendingService) committed(ctx context.Context, op string) error {
	s.updateGauges()
	if !s.autosave {
		return nil
	}
	if err := s.writeLocked(ctx); err != nil {
		return fmt.Errorf("service: saving after %s: %w", op, err)
	}
	return nil
}

func (s *LendingService) updateGauges() {
	metrics.ItemsOnLoan.Set(float64(len(s.registry.Loans())))
}

// =========================================================================
// USERS
// =========================================================================

// AddUser appends an already-built user without any uniqueness check.
func (s *LendingService) AddUser(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.AddUser(u)
	s.logger.Info("user added", slog.String("userID", u.ID))
	return s.committed(ctx, "adding user")
}

// Register creates a user through Registry.AddNewUser.
func (s *LendingService) Register(ctx context.Context, firstName, lastName, email, password, passwordConfirm string) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.registry.AddNewUser(firstName, lastName, email, password, passwordConfirm)
	metrics.RegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
	if err != nil {
		s.logger.Info("registration rejected", slog.String("email", email), slog.String("reason", err.Error()))
		return UserProfile{}, err
	}

	s.logger.Info("user registered", slog.String("userID", u.ID), slog.String("email", email))
	return profileOf(u), s.committed(ctx, "registering user")
}

func registrationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperror.ErrDuplicateEmail):
		return "duplicate_email"
	case errors.Is(err, apperror.ErrPasswordMismatch):
		return "password_mismatch"
	case errors.Is(err, apperror.ErrEmailInvalid):
		return "email_invalid"
	}
	return "error"
}

// CheckUserCredentials is false for an unknown email and for a wrong
// password alike.
func (s *LendingService) CheckUserCredentials(email, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.CheckUserCredentials(email, password)
}

// Authenticate returns the profile of the user with email when password
// matches, and ErrUnauthorized otherwise.
func (s *LendingService) Authenticate(email, password string) (UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.registry.UserByEmail(email)
	if !ok || !u.CheckPassword(password) {
		metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return UserProfile{}, apperror.Unauthorized("invalid email or password")
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return profileOf(u), nil
}

func (s *LendingService) ContainsUser(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.ContainsUser(userID)
}

func (s *LendingService) GetUser(userID string) (UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.registry.User(userID)
	if !ok {
		return UserProfile{}, false
	}
	return profileOf(u), true
}

func (s *LendingService) GetUserByEmail(email string) (UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.registry.UserByEmail(email)
	if !ok {
		return UserProfile{}, false
	}
	return profileOf(u), true
}

// Users lists every user in registration order.
func (s *LendingService) Users() []UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := s.registry.Users()
	out := make([]UserProfile, 0, len(users))
	for _, u := range users {
		out = append(out, profileOf(u))
	}
	return out
}

// RemoveUser fails while the user still holds items.
func (s *LendingService) RemoveUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.RemoveUser(userID); err != nil {
		return err
	}
	s.logger.Info("user removed", slog.String("userID", userID))
	return s.committed(ctx, "removing user")
}

// =========================================================================
// ITEMS
// =========================================================================

// AddItem catalogues a new item. A zero period falls back to the service's
// default period.
func (s *LendingService) AddItem(ctx context.Context, name, description string, period model.LendPeriod) (model.Item, error) {
	if period.IsZero() {
		period = s.defaultPeriod
	}
	item, err := model.NewItem(name, description, period)
	if err != nil {
		return model.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.AddItem(item); err != nil {
		return model.Item{}, err
	}
	s.logger.Info("item added", slog.String("itemID", item.ID), slog.String("name", item.Name))
	return *item, s.committed(ctx, "adding item")
}

// RemoveItem fails while the item is on loan.
func (s *LendingService) RemoveItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.RemoveItem(itemID); err != nil {
		return err
	}
	s.logger.Info("item removed", slog.String("itemID", itemID))
	return s.committed(ctx, "removing item")
}

func (s *LendingService) GetItem(itemID string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.registry.Item(itemID)
	if !ok {
		return model.Item{}, false
	}
	return *item, true
}

// GetAllItems returns the catalog sorted by name, then ID.
func (s *LendingService) GetAllItems() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Item, 0, s.registry.ItemCount())
	for _, item := range s.registry.AllItems() {
		items = append(items, *item)
	}
	slices.SortFunc(items, func(a, b model.Item) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items
}

func (s *LendingService) GetDefaultLendTime(itemID string) (model.LendPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.DefaultLendTime(itemID)
}

// =========================================================================
// LOANS
// =========================================================================

// LendItem checks itemID out to userID and returns the due date.
func (s *LendingService) LendItem(ctx context.Context, userID, itemID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.registry.LendItem(userID, itemID)
	if err != nil {
		return time.Time{}, err
	}
	metrics.LoansTotal.Inc()
	s.logger.Info("item lent",
		slog.String("userID", userID),
		slog.String("itemID", itemID),
		slog.Time("dueAt", due),
	)
	return due, s.committed(ctx, "lending item")
}

func (s *LendingService) ReturnItem(ctx context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.ReturnItem(userID, itemID); err != nil {
		return err
	}
	metrics.ReturnsTotal.Inc()
	s.logger.Info("item returned", slog.String("userID", userID), slog.String("itemID", itemID))
	return s.committed(ctx, "returning item")
}

func (s *LendingService) IsItemLent(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IsItemLent(itemID)
}

func (s *LendingService) GetItemHolder(itemID string) (UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.registry.ItemHolder(itemID)
	if !ok {
		return UserProfile{}, false
	}
	return profileOf(u), true
}

func (s *LendingService) GetLentItems(userID string) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.LentItems(userID)
}

// Loans lists every outstanding loan, earliest due first.
func (s *LendingService) Loans() []model.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Loans()
}

// Now is the service clock used for overdue checks.
func (s *LendingService) Now() time.Time { return s.now() }

// OverdueLoans lists the loans whose due date has passed.
func (s *LendingService) OverdueLoans() []model.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.OverdueLoans(s.now())
}
