package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gatherhq/gather/pkg/observability"
)

// warmupConcurrency bounds the parallel cache seeds during PopulateCache.
const warmupConcurrency = 8

// Engine decides whether a subject may perform an action. All decisions
// are default-deny: absence of evidence is absence of permission.
type Engine struct {
	repo    *Repository
	rules   ImplicationRules
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates a policy engine with the given implication rules.
func NewEngine(repo *Repository, rules ImplicationRules, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	if rules == nil {
		rules = DefaultImplicationRules()
	}
	return &Engine{
		repo:    repo,
		rules:   rules,
		logger:  logger,
		metrics: metrics,
	}
}

// Repository returns the underlying role repository.
func (e *Engine) Repository() *Repository {
	return e.repo
}

// Validate reports whether the user may perform the action identified
// by permissionKey. The only error returned is ErrMalformedKey;
// operational failures (store unreachable, role absent) are a plain
// deny, already logged by the repository.
func (e *Engine) Validate(ctx context.Context, userID, permissionKey string) (bool, error) {
	namespace, _, _, err := ParseRoleKey(permissionKey)
	if err != nil {
		return false, err
	}

	start := time.Now()
	allowed := e.validate(ctx, userID, permissionKey)
	e.metrics.ObserveAuthzCheck(string(namespace), allowed, time.Since(start))
	return allowed, nil
}

func (e *Engine) validate(ctx context.Context, userID, permissionKey string) bool {
	held, err := e.repo.RoleKeysForSubject(ctx, userID)
	if err != nil {
		// Fail closed; the repository already logged the cause.
		return false
	}

	if held.Has(permissionKey) {
		return true
	}
	if held.Has(RoleGlobalAdmin) {
		return true
	}

	return e.rules.Closure(held).Has(permissionKey)
}

// ValidateList reports whether an already-resolved role-key set
// satisfies any of the required keys. Pure function, no I/O: callers
// that paid the resolution cost once can test several alternatives
// without re-querying.
func (e *Engine) ValidateList(held RoleSet, requiredRoleKeys []string) bool {
	if len(requiredRoleKeys) == 0 {
		return true
	}
	if held.Has(RoleGlobalAdmin) {
		return true
	}

	closure := e.rules.Closure(held)
	for _, key := range requiredRoleKeys {
		if closure.Has(key) {
			return true
		}
	}
	return false
}

// GetAllImpliedRolesForUser materializes the full closure of the user's
// role set. A global admin's closure is every role key known to the
// store (capped at the warm-up enumeration limit), since global:admin
// implies every permission.
func (e *Engine) GetAllImpliedRolesForUser(ctx context.Context, userID string) ([]string, error) {
	held, err := e.repo.RoleKeysForSubject(ctx, userID)
	if err != nil {
		return nil, err
	}

	closure := e.rules.Closure(held)

	if held.Has(RoleGlobalAdmin) {
		all, err := e.repo.ListRoleKeys(ctx, 5000)
		if err != nil {
			return nil, fmt.Errorf("failed to expand global admin closure: %w", err)
		}
		for _, rk := range all {
			closure.Add(rk.Key)
		}
	}

	return closure.Keys(), nil
}

// CreateAndAssignChannelRole creates the role row if absent, then
// grants it to the target, as one logical step: channel creation always
// leaves exactly one admin role granted to its creator and never a
// resource with zero controlling roles.
func (e *Engine) CreateAndAssignChannelRole(ctx context.Context, grantingUserID, targetUserID, roleKey, action string, namespace Namespace, channelID int64) (*Role, error) {
	subjectID := fmt.Sprintf("%d", channelID)

	role, err := e.repo.CreateRole(ctx, roleKey, action, namespace, &subjectID, &channelID)
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		// Role already exists; resolve it so the grant can proceed.
		role, err = e.repo.store.GetRoleByKey(ctx, roleKey)
		if err != nil {
			return nil, err
		}
	}

	if ok := e.repo.GrantRole(ctx, grantingUserID, targetUserID, role.ID, roleKey); !ok {
		return nil, fmt.Errorf("failed to grant %s to %s: %w", roleKey, targetUserID, ErrUnavailable)
	}

	return role, nil
}

// PopulateCache is the explicit warm-up pass run once at process start,
// before the service accepts traffic. It seeds the id-lookup cache for
// up to limit role keys with the given TTL. Best effort: a store
// failure here must not prevent startup; checks simply pay a cache-miss
// cost at runtime instead.
func (e *Engine) PopulateCache(ctx context.Context, ttl time.Duration, limit int) int {
	keys, err := e.repo.ListRoleKeys(ctx, limit)
	if err != nil {
		e.logger.WithError(err).Warn("cache warm-up skipped; store unavailable")
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)
	for _, rk := range keys {
		rk := rk
		g.Go(func() error {
			e.repo.cache.SetRoleIDTTL(gctx, rk.Key, rk.ID, ttl)
			return nil
		})
	}
	g.Wait()

	e.metrics.CacheWarmupKeysSeeded.Set(float64(len(keys)))
	e.logger.WithField("seeded", len(keys)).Info("role id cache warmed")
	return len(keys)
}
