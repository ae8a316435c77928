package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/rbac"
)

// ErrNotRedeemable marks a code that exists but is past redemption:
// expired, already used, or revoked.
var ErrNotRedeemable = errors.New("invite code is not redeemable")

const (
	// DefaultExpiresInHours applies when the creator does not pick an
	// expiry.
	DefaultExpiresInHours = 168

	// maxGenerateAttempts bounds regeneration on code collision. With
	// 36^8 possible codes a single retry is already unlikely.
	maxGenerateAttempts = 5

	defaultListLimit = 50
	maxListLimit     = 100
)

// Service implements the invite code lifecycle on top of the role
// repository. Construct once at process start and pass explicitly.
type Service struct {
	store   *Store
	repo    *rbac.Repository
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewService creates the invite code service.
func NewService(store *Store, repo *rbac.Repository, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateInvite persists a new code granting the given role keys. Every
// key must currently resolve to an existing role; a key that does not
// resolve is a hard error, never silently dropped.
func (s *Service) CreateInvite(ctx context.Context, adminUserID string, roleKeys []string, expiresInHours int) (*InviteCode, error) {
	if len(roleKeys) == 0 {
		return nil, fmt.Errorf("at least one role key is required: %w", rbac.ErrMalformedKey)
	}
	for _, key := range roleKeys {
		if _, _, _, err := rbac.ParseRoleKey(key); err != nil {
			return nil, err
		}
		if _, ok := s.repo.RoleIDForKey(ctx, key); !ok {
			return nil, fmt.Errorf("role key %s does not resolve to a role: %w", key, rbac.ErrNotFound)
		}
	}

	if expiresInHours <= 0 {
		expiresInHours = DefaultExpiresInHours
	}

	now := time.Now().UTC()
	c := &InviteCode{
		RoleKeys:  roleKeys,
		CreatedBy: adminUserID,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(expiresInHours) * time.Hour),
	}

	for attempt := 0; ; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		c.Code = code

		err = s.store.Create(ctx, c)
		if err == nil {
			break
		}
		if !errors.Is(err, rbac.ErrConflict) || attempt+1 >= maxGenerateAttempts {
			return nil, err
		}
	}

	s.metrics.InviteCodesCreatedTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"code_id":    c.CodeID,
		"created_by": adminUserID,
		"role_keys":  roleKeys,
		"expires_at": c.ExpiresAt,
	}).Info("invite code created")

	return c, nil
}

// ValidateInviteCode is a pure read: it never mutates state. An
// unredeemable code yields IsValid=false with a user-presentable
// message; only infrastructure failure returns an error.
func (s *Service) ValidateInviteCode(ctx context.Context, code string) (*ValidationResult, error) {
	if !ValidCodeFormat(code) {
		return &ValidationResult{IsValid: false, Message: "invalid code format"}, nil
	}

	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return &ValidationResult{IsValid: false, Message: "invite code does not exist"}, nil
		}
		return nil, err
	}

	switch c.Status(time.Now().UTC()) {
	case StatusUsed:
		return &ValidationResult{IsValid: false, Message: "already used"}, nil
	case StatusRevoked:
		return &ValidationResult{IsValid: false, Message: "invite code revoked"}, nil
	case StatusExpired:
		return &ValidationResult{IsValid: false, Message: "invite code expired"}, nil
	}

	return &ValidationResult{IsValid: true, RoleKeys: c.RoleKeys}, nil
}

// Redeem claims the code for newUserID and grants every listed role,
// atomically: the claim and all grants commit together or not at all. A
// half-redeemed code would either be reusable or lock the new user out,
// so neither partial outcome may survive.
func (s *Service) Redeem(ctx context.Context, code, newUserID string) (*InviteCode, error) {
	if !ValidCodeFormat(code) {
		return nil, fmt.Errorf("invalid invite code format: %w", rbac.ErrMalformedKey)
	}

	c, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if status := c.Status(now); status != StatusActive {
		return nil, fmt.Errorf("invite code %s is %s: %w", code, status, ErrNotRedeemable)
	}

	// Resolve every key before opening the transaction; a key that no
	// longer resolves aborts the redemption untouched.
	roleIDs := make([]int64, 0, len(c.RoleKeys))
	for _, key := range c.RoleKeys {
		id, ok := s.repo.RoleIDForKey(ctx, key)
		if !ok {
			return nil, fmt.Errorf("role key %s no longer resolves: %w", key, rbac.ErrNotFound)
		}
		roleIDs = append(roleIDs, id)
	}

	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start redemption: %w", err)
	}

	claimed, err := s.store.ClaimIn(ctx, tx, c.CodeID, newUserID, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if !claimed {
		// A concurrent redeemer, revoke, or the expiry deadline won the
		// race between our read and the claim.
		tx.Rollback()
		return nil, fmt.Errorf("invite code %s: %w", code, ErrNotRedeemable)
	}

	for i, key := range c.RoleKeys {
		a := rbac.Assignment{
			UserID:     newUserID,
			RoleID:     roleIDs[i],
			AssignedBy: &c.CreatedBy,
		}
		if err := s.repo.Store().UpsertAssignmentIn(ctx, tx, a); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to grant %s during redemption: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	// Post-commit: the new user's cached role set (if any) predates the
	// grants.
	s.repo.Cache().InvalidateRoleKeys(ctx, newUserID)

	c.UsedBy = &newUserID
	c.UsedAt = &now

	s.metrics.InviteCodesRedeemedTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"code_id":   c.CodeID,
		"used_by":   newUserID,
		"role_keys": c.RoleKeys,
	}).Info("invite code redeemed")

	return c, nil
}

// RevokeInvite marks the code revoked. Only valid from the not-yet-used
// state: revoking a used code is ErrConflict, never a silent success.
func (s *Service) RevokeInvite(ctx context.Context, adminUserID string, codeID int64) error {
	now := time.Now().UTC()

	revoked, err := s.store.MarkRevoked(ctx, codeID, adminUserID, now)
	if err != nil {
		return err
	}
	if !revoked {
		c, err := s.store.GetByID(ctx, codeID)
		if err != nil {
			return err
		}
		return fmt.Errorf("invite code %d is already %s: %w", codeID, c.Status(now), rbac.ErrConflict)
	}

	s.metrics.InviteCodesRevokedTotal.Inc()
	s.logger.WithFields(map[string]interface{}{
		"code_id":    codeID,
		"revoked_by": adminUserID,
	}).Info("invite code revoked")

	return nil
}

// ListInviteCodes returns one page of codes with derived status,
// optionally filtered (empty status means all).
func (s *Service) ListInviteCodes(ctx context.Context, status Status, limit, offset int) (*ListResult, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status filter %q: %w", status, rbac.ErrMalformedKey)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	now := time.Now().UTC()

	codes, err := s.store.List(ctx, status, now, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Count(ctx, status, now)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(codes))
	for _, c := range codes {
		entries = append(entries, ListEntry{InviteCode: *c, Status: c.Status(now)})
	}

	return &ListResult{
		Data:        entries,
		TotalCount:  total,
		HasMore:     offset+len(entries) < total,
		HasPrevious: offset > 0,
	}, nil
}
