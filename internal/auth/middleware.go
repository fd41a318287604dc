package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/lead-agent/internal/api"
	"github.com/ashureev/lead-agent/internal/domain"
)

type contextKey int

const principalKey contextKey = iota

// Authenticator resolves bearer tokens to principals.
type Authenticator struct {
	dir    *Directory
	tokens *TokenService
}

// NewAuthenticator creates an authenticator over the directory and token service.
func NewAuthenticator(dir *Directory, tokens *TokenService) *Authenticator {
	return &Authenticator{dir: dir, tokens: tokens}
}

// Authenticate validates the token and returns the principal of an active user.
func (a *Authenticator) Authenticate(_ context.Context, bearer string) (domain.Principal, error) {
	username, err := a.tokens.Subject(bearer)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	u, err := a.dir.User(username)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("authenticate: %w", err)
	}
	if !u.IsActive {
		return domain.Principal{}, ErrInactiveUser
	}
	return u.Principal(), nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(a *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				api.Error(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				msg := "could not validate credentials"
				if errors.Is(err, ErrInactiveUser) {
					msg = "inactive user"
				}
				w.Header().Set("WWW-Authenticate", "Bearer")
				api.Error(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin rejects principals without the admin role. It must run after
// RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !p.IsAdmin() {
			api.Error(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
