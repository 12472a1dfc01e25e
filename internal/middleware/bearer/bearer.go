// Package bearer authenticates API requests with JWT bearer tokens.
package bearer

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"taxdesk/internal/auth"
)

// CookieName is the fallback token location used by the browser app.
const CookieName = "token"

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	EmailKey  contextKey = "email"
)

// Validator checks a raw token and returns its claims.
type Validator interface {
	Validate(token string) (*auth.Claims, error)
}

// UserID returns the authenticated user's id, or "" outside RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func Email(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// WithUser returns ctx carrying an authenticated identity.
func WithUser(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}

// TokenFromRequest reads the Authorization bearer token, falling back to
// the token cookie.
func TokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", auth.ErrInvalidToken
		}
		return strings.TrimSpace(token), nil
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", auth.ErrMissingToken
}

// RequireAuth rejects requests without a valid token by calling onFail,
// which writes the 401. Authenticated requests carry the user in context.
func RequireAuth(v Validator, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := TokenFromRequest(r)
			if err == nil {
				var claims *auth.Claims
				if claims, err = v.Validate(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID, claims.Email)))
					return
				}
			}
			if onFail != nil {
				onFail(w, r, err)
				return
			}
			status := http.StatusUnauthorized
			if !errors.Is(err, auth.ErrMissingToken) {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			}
			http.Error(w, err.Error(), status)
		})
	}
}
