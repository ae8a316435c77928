package invite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/gatherhq/gather/pkg/rbac"
)

func newTestService(t *testing.T) (*Service, *Store, *rbac.Repository, *sql.DB) {
	t.Helper()
	repo, _, db := rbac.NewTestRepository(t)
	store := NewStore(db)
	svc := NewService(store, repo, rbac.NewTestLogger(t), rbac.NewTestMetrics(t))
	return svc, store, repo, db
}

func seedRole(t *testing.T, repo *rbac.Repository, roleKey string) *rbac.Role {
	t.Helper()
	namespace, subjectID, action, err := rbac.ParseRoleKey(roleKey)
	if err != nil {
		t.Fatalf("bad role key %s: %v", roleKey, err)
	}
	var subject *string
	if subjectID != "" {
		subject = &subjectID
	}
	role, err := repo.CreateRole(context.Background(), roleKey, action, namespace, subject, nil)
	if err != nil {
		t.Fatalf("CreateRole(%s) failed: %v", roleKey, err)
	}
	return role
}

func mustCreateInvite(t *testing.T, svc *Service, admin string, roleKeys []string, hours int) *InviteCode {
	t.Helper()
	c, err := svc.CreateInvite(context.Background(), admin, roleKeys, hours)
	if err != nil {
		t.Fatalf("CreateInvite failed: %v", err)
	}
	return c
}

func TestService_CreateInvite(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	seedRole(t, repo, "mentor:access")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)

	if c.CodeID == 0 {
		t.Error("expected a persisted code id")
	}
	if !ValidCodeFormat(c.Code) {
		t.Errorf("generated code %q has invalid format", c.Code)
	}
	if c.Status(time.Now().UTC()) != StatusActive {
		t.Error("fresh invite must be active")
	}

	got, err := svc.ValidateInviteCode(ctx, c.Code)
	if err != nil {
		t.Fatalf("ValidateInviteCode failed: %v", err)
	}
	if !got.IsValid || len(got.RoleKeys) != 1 || got.RoleKeys[0] != "mentor:access" {
		t.Errorf("unexpected validation result: %+v", got)
	}
}

func TestService_CreateInvite_UnresolvableKeyRejected(t *testing.T) {
	svc, _, _, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")

	_, err := svc.CreateInvite(ctx, "admin", []string{"mentor:access"}, 1)
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unresolvable role key, got %v", err)
	}
}

func TestService_CreateInvite_MalformedKeyRejected(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateInvite(ctx, "admin", []string{"not a key"}, 1)
	if !errors.Is(err, rbac.ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey, got %v", err)
	}

	_, err = svc.CreateInvite(ctx, "admin", nil, 1)
	if !errors.Is(err, rbac.ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey for empty key list, got %v", err)
	}
}

func TestService_CreateInvite_DefaultExpiry(t *testing.T) {
	svc, _, repo, db := newTestService(t)

	rbac.SeedUser(t, db, "admin")
	seedRole(t, repo, "mentor:access")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 0)

	want := c.CreatedAt.Add(DefaultExpiresInHours * time.Hour)
	if !c.ExpiresAt.Equal(want) {
		t.Errorf("expected default expiry %v, got %v", want, c.ExpiresAt)
	}
}

func TestService_ValidateInviteCode_Invalid(t *testing.T) {
	svc, store, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	seedRole(t, repo, "mentor:access")

	tests := []struct {
		name    string
		code    string
		message string
	}{
		{name: "bad format", code: "short", message: "invalid code format"},
		{name: "lowercase", code: "abcd1234", message: "invalid code format"},
		{name: "unknown", code: "AAAA1111", message: "invite code does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ValidateInviteCode(ctx, tt.code)
			if err != nil {
				t.Fatalf("ValidateInviteCode failed: %v", err)
			}
			if got.IsValid || got.Message != tt.message {
				t.Errorf("expected {false, %q}, got %+v", tt.message, got)
			}
		})
	}

	// Expired: persisted directly with a deadline in the past.
	now := time.Now().UTC()
	expired := &InviteCode{
		Code:      "EXPIRED1",
		RoleKeys:  []string{"mentor:access"},
		CreatedBy: "admin",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.Create(ctx, expired); err != nil {
		t.Fatalf("failed to seed expired code: %v", err)
	}

	got, err := svc.ValidateInviteCode(ctx, "EXPIRED1")
	if err != nil {
		t.Fatalf("ValidateInviteCode failed: %v", err)
	}
	if got.IsValid || got.Message != "invite code expired" {
		t.Errorf("expected expired result, got %+v", got)
	}
}

func TestService_Redeem(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	rbac.SeedUser(t, db, "newcomer")
	seedRole(t, repo, "mentor:access")
	seedRole(t, repo, "channel:3:read")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access", "channel:3:read"}, 1)

	redeemed, err := svc.Redeem(ctx, c.Code, "newcomer")
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if redeemed.UsedBy == nil || *redeemed.UsedBy != "newcomer" {
		t.Errorf("expected code marked used by newcomer, got %+v", redeemed.UsedBy)
	}

	held, err := repo.RoleKeysForSubject(ctx, "newcomer")
	if err != nil {
		t.Fatalf("RoleKeysForSubject failed: %v", err)
	}
	for _, key := range []string{"mentor:access", "channel:3:read"} {
		if !held.Has(key) {
			t.Errorf("redemption must grant %s", key)
		}
	}

	got, err := svc.ValidateInviteCode(ctx, c.Code)
	if err != nil {
		t.Fatalf("ValidateInviteCode failed: %v", err)
	}
	if got.IsValid || got.Message != "already used" {
		t.Errorf("expected {false, already used}, got %+v", got)
	}
}

func TestService_Redeem_TwiceDoesNotDoubleGrant(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	rbac.SeedUser(t, db, "newcomer")
	role := seedRole(t, repo, "mentor:access")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)

	if _, err := svc.Redeem(ctx, c.Code, "newcomer"); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if _, err := svc.Redeem(ctx, c.Code, "newcomer"); !errors.Is(err, ErrNotRedeemable) {
		t.Errorf("expected ErrNotRedeemable on second redeem, got %v", err)
	}

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		"newcomer", role.ID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 assignment row, got %d", count)
	}
}

func TestService_Redeem_NotRedeemableStates(t *testing.T) {
	svc, store, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	rbac.SeedUser(t, db, "newcomer")
	seedRole(t, repo, "mentor:access")

	// Unknown code.
	if _, err := svc.Redeem(ctx, "AAAA1111", "newcomer"); !errors.Is(err, rbac.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown code, got %v", err)
	}

	// Malformed code.
	if _, err := svc.Redeem(ctx, "nope", "newcomer"); !errors.Is(err, rbac.ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey for bad format, got %v", err)
	}

	// Revoked code.
	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)
	if err := svc.RevokeInvite(ctx, "admin", c.CodeID); err != nil {
		t.Fatalf("RevokeInvite failed: %v", err)
	}
	if _, err := svc.Redeem(ctx, c.Code, "newcomer"); !errors.Is(err, ErrNotRedeemable) {
		t.Errorf("expected ErrNotRedeemable for revoked code, got %v", err)
	}

	// Expired code.
	now := time.Now().UTC()
	expired := &InviteCode{
		Code:      "EXPIRED2",
		RoleKeys:  []string{"mentor:access"},
		CreatedBy: "admin",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.Create(ctx, expired); err != nil {
		t.Fatalf("failed to seed expired code: %v", err)
	}
	if _, err := svc.Redeem(ctx, "EXPIRED2", "newcomer"); !errors.Is(err, ErrNotRedeemable) {
		t.Errorf("expected ErrNotRedeemable for expired code, got %v", err)
	}

	// Nothing was granted along the way.
	held, err := repo.RoleKeysForSubject(ctx, "newcomer")
	if err != nil {
		t.Fatalf("RoleKeysForSubject failed: %v", err)
	}
	if len(held) != 0 {
		t.Errorf("failed redemptions must not grant roles, got %v", held.Keys())
	}
}

func TestService_RevokeInvite(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	seedRole(t, repo, "mentor:access")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)

	if err := svc.RevokeInvite(ctx, "admin", c.CodeID); err != nil {
		t.Fatalf("RevokeInvite failed: %v", err)
	}

	got, err := svc.ValidateInviteCode(ctx, c.Code)
	if err != nil {
		t.Fatalf("ValidateInviteCode failed: %v", err)
	}
	if got.IsValid || got.Message != "invite code revoked" {
		t.Errorf("expected revoked result, got %+v", got)
	}

	// Revoking again is a conflict, not a silent success.
	if err := svc.RevokeInvite(ctx, "admin", c.CodeID); !errors.Is(err, rbac.ErrConflict) {
		t.Errorf("expected ErrConflict on double revoke, got %v", err)
	}
}

func TestService_RevokeInvite_UsedCodeConflicts(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	rbac.SeedUser(t, db, "newcomer")
	seedRole(t, repo, "mentor:access")

	c := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)
	if _, err := svc.Redeem(ctx, c.Code, "newcomer"); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	if err := svc.RevokeInvite(ctx, "admin", c.CodeID); !errors.Is(err, rbac.ErrConflict) {
		t.Errorf("expected ErrConflict revoking a used code, got %v", err)
	}
}

func TestService_RevokeInvite_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if err := svc.RevokeInvite(context.Background(), "admin", 9999); !errors.Is(err, rbac.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_ListInviteCodes(t *testing.T) {
	svc, store, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	rbac.SeedUser(t, db, "newcomer")
	seedRole(t, repo, "mentor:access")

	active := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)
	used := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)
	revoked := mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)

	if _, err := svc.Redeem(ctx, used.Code, "newcomer"); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if err := svc.RevokeInvite(ctx, "admin", revoked.CodeID); err != nil {
		t.Fatalf("RevokeInvite failed: %v", err)
	}

	now := time.Now().UTC()
	expired := &InviteCode{
		Code:      "EXPIRED3",
		RoleKeys:  []string{"mentor:access"},
		CreatedBy: "admin",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	if err := store.Create(ctx, expired); err != nil {
		t.Fatalf("failed to seed expired code: %v", err)
	}

	all, err := svc.ListInviteCodes(ctx, "", 50, 0)
	if err != nil {
		t.Fatalf("ListInviteCodes failed: %v", err)
	}
	if all.TotalCount != 4 || len(all.Data) != 4 {
		t.Fatalf("expected 4 codes, got total=%d len=%d", all.TotalCount, len(all.Data))
	}
	if all.HasMore || all.HasPrevious {
		t.Error("single full page must have no more/previous")
	}

	for _, tt := range []struct {
		status Status
		codeID int64
	}{
		{StatusActive, active.CodeID},
		{StatusUsed, used.CodeID},
		{StatusRevoked, revoked.CodeID},
		{StatusExpired, expired.CodeID},
	} {
		page, err := svc.ListInviteCodes(ctx, tt.status, 50, 0)
		if err != nil {
			t.Fatalf("ListInviteCodes(%s) failed: %v", tt.status, err)
		}
		if len(page.Data) != 1 || page.Data[0].CodeID != tt.codeID {
			t.Errorf("filter %s: expected only code %d, got %+v", tt.status, tt.codeID, page.Data)
		}
		if page.Data[0].Status != tt.status {
			t.Errorf("filter %s: derived status mismatch: %s", tt.status, page.Data[0].Status)
		}
	}
}

func TestService_ListInviteCodes_Pagination(t *testing.T) {
	svc, _, repo, db := newTestService(t)
	ctx := context.Background()

	rbac.SeedUser(t, db, "admin")
	seedRole(t, repo, "mentor:access")

	for i := 0; i < 5; i++ {
		mustCreateInvite(t, svc, "admin", []string{"mentor:access"}, 1)
	}

	page, err := svc.ListInviteCodes(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("ListInviteCodes failed: %v", err)
	}
	if len(page.Data) != 2 || page.TotalCount != 5 || !page.HasMore || page.HasPrevious {
		t.Errorf("first page wrong: len=%d total=%d more=%v prev=%v",
			len(page.Data), page.TotalCount, page.HasMore, page.HasPrevious)
	}

	page, err = svc.ListInviteCodes(ctx, "", 2, 4)
	if err != nil {
		t.Fatalf("ListInviteCodes failed: %v", err)
	}
	if len(page.Data) != 1 || page.HasMore || !page.HasPrevious {
		t.Errorf("last page wrong: len=%d more=%v prev=%v", len(page.Data), page.HasMore, page.HasPrevious)
	}
}

func TestService_ListInviteCodes_UnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.ListInviteCodes(context.Background(), "pending", 10, 0); !errors.Is(err, rbac.ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey for unknown status, got %v", err)
	}
}
