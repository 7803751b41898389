package middleware

import (
	"context"
	"net/http"
	"strings"

	"recetario/internal/models"
	"recetario/internal/services"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session_token"

type contextKey string

const sessionContextKey contextKey = "session"

// SessionToken extracts the token from the cookie or a Bearer header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// LoadSession resolves the request's session, extends its expiration and puts
// it in the request context. Requests without a valid session pass through
// unauthenticated; RequireAuth is the gate.
func LoadSession(sessions *services.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token != "" {
				session, err := sessions.Get(r.Context(), token)
				if err == nil && session != nil {
					sessions.Touch(r.Context(), token)
					r = r.WithContext(context.WithValue(r.Context(), sessionContextKey, session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects requests that carry no bound session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"success":false,"messages":["Authentication required"]}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the bound session, if any.
func SessionFromContext(ctx context.Context) (*models.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	return session, ok
}
