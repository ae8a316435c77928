package middleware

import (
	"net/http"

	"github.com/gatherhq/gather/pkg/contextkeys"
	"github.com/gatherhq/gather/pkg/httputil"
)

// UserHeader is the trusted header the upstream gateway sets after
// authenticating the session.
const UserHeader = "X-Gather-User"

// IdentityMiddleware lifts the gateway-asserted user id into the
// request context. It never rejects: endpoints that need a caller
// enforce that through RequireUser or the rbac gate.
type IdentityMiddleware struct {
	header string
}

// NewIdentityMiddleware creates an identity middleware reading the
// given header (empty means UserHeader).
func NewIdentityMiddleware(header string) *IdentityMiddleware {
	if header == "" {
		header = UserHeader
	}
	return &IdentityMiddleware{header: header}
}

// Handler wraps an HTTP handler with identity resolution.
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID := r.Header.Get(m.header); userID != "" {
			r = r.WithContext(contextkeys.WithUserID(r.Context(), userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests that carry no caller identity. For
// endpoints that need a user but no particular permission key.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.GetUserID(r.Context()) == "" {
			httputil.WriteUnauthorized(w, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserID returns the caller's user id, or empty when anonymous.
func GetUserID(r *http.Request) string {
	return contextkeys.GetUserID(r.Context())
}
