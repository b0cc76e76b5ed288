package service

import (
	"fmt"
	"log/slog"

	"github.com/sakif/lendpal/internal/apperror"
	"github.com/sakif/lendpal/internal/auth"
)

// AuthService turns a successful password check into a session token:
//
//	AuthHandler (HTTP) → AuthService → LendingService.Authenticate
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	lending *LendingService
	tokens  *auth.TokenService
	logger  *slog.Logger
}

func NewAuthService(lending *LendingService, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		lending: lending,
		tokens:  tokens,
		logger:  logger,
	}
}

// AuthResult bundles the profile and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  UserProfile
	Token string
}

// Login checks email and password and issues a token for the user.
// A wrong password and an unknown email both give ErrUnauthorized.
func (s *AuthService) Login(email, password string) (*AuthResult, error) {
	profile, err := s.lending.Authenticate(email, password)
	if err != nil {
		s.logger.Info("login rejected", slog.String("email", email))
		return nil, err
	}

	token, err := s.tokens.Generate(profile.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", profile.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", profile.ID))
	return &AuthResult{User: profile, Token: token}, nil
}

// CurrentUser returns the profile behind a validated token's user ID. A
// user removed after the token was issued is treated as logged out.
func (s *AuthService) CurrentUser(userID string) (UserProfile, error) {
	profile, ok := s.lending.GetUser(userID)
	if !ok {
		return UserProfile{}, apperror.Unauthorized("session user no longer exists")
	}
	return profile, nil
}

// ValidateToken returns the user ID encoded in tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}

// TokenMaxAge is the lifetime of issued tokens in seconds, for cookies.
func (s *AuthService) TokenMaxAge() int {
	return int(s.tokens.TTL().Seconds())
}
