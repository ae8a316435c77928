package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
)

// Repository combines the durable store with the cache layer and owns
// the invalidation discipline: every mutation invalidates the affected
// cache keys after the durable write commits.
//
// Reads that gate authorization fail closed: a store error yields "no
// result", never an implicit allow, and the error is logged with the
// operation and role key.
type Repository struct {
	store   *Store
	cache   *Cache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewRepository creates a role repository.
func NewRepository(store *Store, cache *Cache, logger *observability.Logger, metrics *observability.Metrics) *Repository {
	return &Repository{
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// RoleIDForKey resolves a role key to its id, cache first. The second
// return is false when the role does not exist or the store failed;
// callers must treat both as deny, not as a system error.
func (r *Repository) RoleIDForKey(ctx context.Context, roleKey string) (int64, bool) {
	if id, ok := r.cache.GetRoleID(ctx, roleKey); ok {
		return id, true
	}

	id, err := r.observeStore(ctx, "get_role_id", func() (int64, error) {
		return r.store.GetRoleIDByKey(ctx, roleKey)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			r.logger.WithField("role_key", roleKey).Warn("role not found")
		} else {
			r.logger.WithError(err).WithField("role_key", roleKey).
				Error("role id lookup failed; failing closed")
		}
		return 0, false
	}

	r.cache.SetRoleID(ctx, roleKey, id)
	return id, true
}

// RoleKeysForSubject returns the set of role keys a user directly
// holds, cache first. On store failure the returned set is empty and
// the error is reported so the engine denies.
func (r *Repository) RoleKeysForSubject(ctx context.Context, userID string) (RoleSet, error) {
	if set, ok := r.cache.GetRoleKeys(ctx, userID); ok {
		return set, nil
	}

	set, err := r.observeStoreSet(ctx, "get_user_roles", func() (RoleSet, error) {
		return r.store.GetRoleKeysForUser(ctx, userID)
	})
	if err != nil {
		r.logger.WithError(err).WithField("user_id", userID).
			Error("role set lookup failed; failing closed")
		return RoleSet{}, err
	}

	r.cache.SetRoleKeys(ctx, userID, set)
	return set, nil
}

// SubjectsForRole lists the users holding a role key. Uncached; used
// for fan-out (broadcast), not on the authorization hot path.
func (r *Repository) SubjectsForRole(ctx context.Context, roleKey string) ([]string, error) {
	return r.store.GetUserIDsForRole(ctx, roleKey)
}

// CreateRole inserts a new role and proactively invalidates its
// role-id cache entry so a prior failed lookup cannot mask the new row.
// Duplicate keys return ErrConflict.
func (r *Repository) CreateRole(ctx context.Context, roleKey, action string, namespace Namespace, subjectID *string, channelID *int64) (*Role, error) {
	role := &Role{
		Namespace: namespace,
		SubjectID: subjectID,
		Action:    action,
		RoleKey:   roleKey,
		ChannelID: channelID,
	}

	if err := r.store.CreateRole(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			r.logger.WithField("role_key", roleKey).Debug("role already exists")
		} else {
			r.logger.WithError(err).WithField("role_key", roleKey).Error("role creation failed")
		}
		r.metrics.StoreOperationsTotal.WithLabelValues("create_role", "error").Inc()
		return nil, err
	}
	r.metrics.StoreOperationsTotal.WithLabelValues("create_role", "ok").Inc()

	r.cache.InvalidateRoleID(ctx, roleKey)
	return role, nil
}

// GrantRole upserts the (target, role) assignment and invalidates the
// target's role-set cache. Idempotent: re-granting a held role is a
// success. Returns false only when the durable write failed.
func (r *Repository) GrantRole(ctx context.Context, grantingUserID, targetUserID string, roleID int64, roleKey string) bool {
	a := Assignment{
		UserID: targetUserID,
		RoleID: roleID,
	}
	if grantingUserID != "" {
		a.AssignedBy = &grantingUserID
	}

	if err := r.store.UpsertAssignment(ctx, a); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"role_key":       roleKey,
			"target_user_id": targetUserID,
		}).Error("role grant failed")
		r.metrics.StoreOperationsTotal.WithLabelValues("grant_role", "error").Inc()
		return false
	}
	r.metrics.StoreOperationsTotal.WithLabelValues("grant_role", "ok").Inc()

	r.cache.InvalidateRoleKeys(ctx, targetUserID)
	return true
}

// RevokeRole removes the assignment and invalidates the target's
// role-set cache so the revocation is observed immediately.
func (r *Repository) RevokeRole(ctx context.Context, targetUserID string, roleID int64) error {
	if err := r.store.DeleteAssignment(ctx, targetUserID, roleID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.WithError(err).WithField("target_user_id", targetUserID).Error("role revoke failed")
		}
		return err
	}

	r.cache.InvalidateRoleKeys(ctx, targetUserID)
	return nil
}

// ListRoleKeys enumerates role keys with ids for warm-up.
func (r *Repository) ListRoleKeys(ctx context.Context, limit int) ([]RoleKeyID, error) {
	return r.store.ListRoleKeys(ctx, limit)
}

// UserExists reports whether the subject has a profile row.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	return r.store.UserExists(ctx, userID)
}

// Store exposes the underlying durable store for flows that need
// transaction-scoped writes (invite redemption).
func (r *Repository) Store() *Store {
	return r.store
}

// Cache exposes the cache layer for post-commit invalidation by
// transaction-owning flows.
func (r *Repository) Cache() *Cache {
	return r.cache
}

func (r *Repository) observeStore(ctx context.Context, op string, fn func() (int64, error)) (int64, error) {
	start := time.Now()
	v, err := fn()
	r.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, ErrNotFound) {
			status = "not_found"
		}
	}
	r.metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	return v, err
}

func (r *Repository) observeStoreSet(ctx context.Context, op string, fn func() (RoleSet, error)) (RoleSet, error) {
	start := time.Now()
	v, err := fn()
	r.metrics.StoreOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	return v, err
}
