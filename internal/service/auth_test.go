package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/auth"
)

// newTestAuthService returns an AuthService over a fresh lending service.
func newTestAuthService(t *testing.T) (*AuthService, *LendingService) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	lending := newTestService(t, &fakeStore{})
	return NewAuthService(lending, ts, discardLogger()), lending
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin(t *testing.T) {
	svc, lending := newTestAuthService(t)
	u, err := lending.Register(context.Background(), "Test", "Test", "test@epost.com", "Tullepassord", "Tullepassord")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	result, err := svc.Login("test@epost.com", "Tullepassord")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Token == "" {
		t.Fatal("Login() returned empty Token")
	}
	if result.User.ID != u.ID {
		t.Errorf("User.ID = %q, want %q", result.User.ID, u.ID)
	}

	userID, err := svc.ValidateToken(result.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if userID != u.ID {
		t.Errorf("token subject = %q, want %q", userID, u.ID)
	}
}

func TestLogin_Rejected(t *testing.T) {
	svc, lending := newTestAuthService(t)
	if _, err := lending.Register(context.Background(), "Test", "Test", "test@epost.com", "Tullepassord", "Tullepassord"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cases := []struct{ name, email, password string }{
		{"wrong password", "test@epost.com", "tullepassord"},
		{"unknown email", "nobody@epost.com", "Tullepassord"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Login(tc.email, tc.password)
			if !errors.Is(err, apperror.ErrUnauthorized) {
				t.Fatalf("Login() error = %v, want ErrUnauthorized", err)
			}
			if result != nil {
				t.Error("Login() returned a result alongside an error")
			}
		})
	}
}

// =========================================================================
// SESSION TESTS
// =========================================================================

func TestCurrentUser(t *testing.T) {
	svc, lending := newTestAuthService(t)
	ctx := context.Background()
	u, _ := lending.Register(ctx, "Test", "Test", "test@epost.com", "pw", "pw")

	profile, err := svc.CurrentUser(u.ID)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if profile.Email != "test@epost.com" {
		t.Errorf("Email = %q", profile.Email)
	}

	if err := lending.RemoveUser(ctx, u.ID); err != nil {
		t.Fatalf("RemoveUser() error = %v", err)
	}
	if _, err := svc.CurrentUser(u.ID); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("CurrentUser(removed) error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateToken_Invalid(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.ValidateToken("garbage"); err == nil {
		t.Fatal("ValidateToken() should reject garbage")
	}
}

func TestTokenMaxAge(t *testing.T) {
	svc, _ := newTestAuthService(t)
	if got := svc.TokenMaxAge(); got != 3600 {
		t.Errorf("TokenMaxAge() = %d, want 3600", got)
	}
}
