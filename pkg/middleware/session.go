package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/edpsych-connect/connect/pkg/contextkeys"
	"github.com/edpsych-connect/connect/pkg/httputil"
	"github.com/edpsych-connect/connect/pkg/observability"
	"github.com/edpsych-connect/connect/pkg/sessions"
)

// RequireSession rejects requests without a live session in the
// connect_session cookie. The resolved session and its user id are added to
// the request context.
func RequireSession(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessions.CookieName)
			if err != nil || cookie.Value == "" {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			session, err := store.Get(r.Context(), cookie.Value)
			if errors.Is(err, sessions.ErrNotFound) {
				httputil.WriteUnauthorized(w, "session expired")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("Session lookup failed")
				httputil.WriteServiceUnavailable(w, "session store unavailable")
				return
			}

			ctx := contextkeys.WithSession(r.Context(), session)
			ctx = contextkeys.WithUserID(ctx, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext returns the session set by RequireSession, or nil
func SessionFromContext(ctx context.Context) *sessions.Session {
	session, _ := ctx.Value(contextkeys.SessionKey).(*sessions.Session)
	return session
}
