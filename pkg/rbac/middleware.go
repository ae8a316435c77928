package rbac

import (
	"net/http"

	"github.com/gatherhq/gather/pkg/contextkeys"
	"github.com/gatherhq/gather/pkg/httputil"
)

// Gate is the middleware every entry point declares its required
// permission keys through. The gate runs before business logic; a
// denied caller sees a generic message that never reveals whether the
// resource exists or why resolution failed.
type Gate struct {
	engine *Engine
}

// NewGate creates a permission gate backed by the policy engine.
func NewGate(engine *Engine) *Gate {
	return &Gate{engine: engine}
}

// Require returns middleware enforcing a single permission key.
func (g *Gate) Require(permissionKey string) func(http.Handler) http.Handler {
	return g.RequireAny(permissionKey)
}

// RequireAny returns middleware that allows the request when the caller
// holds any of the supplied permission keys (an OR over the list). The
// caller's role set is resolved once and tested against every
// alternative.
func (g *Gate) RequireAny(permissionKeys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := contextkeys.GetUserID(r.Context())
			if userID == "" {
				httputil.WriteUnauthorized(w, "sign in required")
				return
			}

			held, err := g.engine.Repository().RoleKeysForSubject(r.Context(), userID)
			if err != nil {
				// Fail closed on store trouble, but do not leak why.
				httputil.WriteForbidden(w, "insufficient permission")
				return
			}

			if !g.engine.ValidateList(held, permissionKeys) {
				httputil.WriteForbidden(w, "insufficient permission")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
