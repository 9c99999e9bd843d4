package middleware

import (
	"net/http"
	"strings"

	"github.com/bazaarly/analytics/internal/auth"
)

// Headers set by the upstream gateway after it authenticates the caller.
const (
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

const maxUserIDLength = 128

// Identity places the gateway-forwarded caller in the request context.
// Requests without a user id stay anonymous; ingestion accepts them and
// report handlers reject them.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" || len(userID) > maxUserIDLength {
			next.ServeHTTP(w, r)
			return
		}

		id := &auth.Identity{
			UserID: userID,
			Role:   strings.TrimSpace(r.Header.Get(UserRoleHeader)),
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}
