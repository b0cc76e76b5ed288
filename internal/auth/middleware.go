package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the cookie the login handler sets and RequireAuth reads.
const CookieName = "token"

// contextKey keeps other packages from reading or shadowing our values.
type contextKey string

const userIDKey contextKey = "userID"

var errNoToken = errors.New("auth: no token in request")

// RequireAuth rejects requests without a valid session token with 401 and
// otherwise stores the user ID in the request context.
//
// The token is taken from the "token" cookie, or from an
// "Authorization: Bearer <jwt>" header when there is no cookie.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// TokenFromRequest returns the raw session token, cookie first.
func TokenFromRequest(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok && token != "" {
		return strings.TrimSpace(token), true
	}
	return "", false
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	token, ok := TokenFromRequest(r)
	if !ok {
		return "", errNoToken
	}
	return tokens.Validate(token)
}
