package rbac

import (
	"context"
	"errors"

	"github.com/gatherhq/gather/pkg/observability"
)

// EnsureBuiltinRoles creates the unscoped built-in roles if they do not
// exist. Safe to run on every startup: an existing role is skipped.
func EnsureBuiltinRoles(ctx context.Context, repo *Repository, logger *observability.Logger) error {
	for _, b := range BuiltinRoles() {
		roleKey := BuildRoleKey(b.Namespace, "", b.Action)

		if _, ok := repo.RoleIDForKey(ctx, roleKey); ok {
			continue
		}

		_, err := repo.CreateRole(ctx, roleKey, b.Action, b.Namespace, nil, nil)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return err
		}
		logger.WithField("role_key", roleKey).Info("created built-in role")
	}
	return nil
}
