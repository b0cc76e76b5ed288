package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/lendpal/internal/auth"
	"github.com/sakif/lendpal/internal/service"
)

// AuthHandler covers registration, the password login and the session.
//
//   - HandleRegister → create a user (no session is started)
//   - HandleLogin    → check the password, issue a JWT cookie
//   - HandleLogout   → clear the JWT cookie
//   - HandleMe       → the logged-in user's profile
type AuthHandler struct {
	auth    *service.AuthService
	lending *service.LendingService
	logger  *slog.Logger
}

func NewAuthHandler(authService *service.AuthService, lending *service.LendingService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    authService,
		lending: lending,
		logger:  logger,
	}
}

type registerRequest struct {
	FirstName       string `json:"firstName" validate:"max=100"`
	LastName        string `json:"lastName" validate:"max=100"`
	Email           string `json:"email" validate:"max=254"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// HandleRegister creates a user.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"firstName","lastName","email","password","passwordConfirm"}
//
// Email shape, duplicate email and password mismatch are checked by the
// registry; the validator only rejects missing or oversized fields.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := h.lending.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, profile)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	User  service.UserProfile `json:"user"`
	Token string              `json:"token"`
}

// HandleLogin checks email and password and starts a session.
//
// HTTP: POST /auth/login
//
// The JWT is set as an HttpOnly cookie (JavaScript cannot read it) and also
// returned in the body for clients that send it as a Bearer header.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   h.auth.TokenMaxAge(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{User: result.User, Token: result.Token})
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so a copied token stays valid until it expires.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the logged-in user's profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleMyLoans lists the logged-in user's loans.
//
// HTTP: GET /api/me/loans
func (h *AuthHandler) HandleMyLoans(w http.ResponseWriter, r *http.Request) {
	profile, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, loansOf(profile, h.lending.Now()))
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (service.UserProfile, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return service.UserProfile{}, false
	}

	profile, err := h.auth.CurrentUser(userID)
	if err != nil {
		h.logger.Warn("session for unknown user", slog.String("userID", userID))
		writeError(w, err)
		return service.UserProfile{}, false
	}
	return profile, true
}
