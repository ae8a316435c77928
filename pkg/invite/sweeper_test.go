package invite

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gatherhq/gather/pkg/rbac"
)

func TestSweeper_RunOnce(t *testing.T) {
	_, _, db := rbac.NewTestRepository(t)
	store := NewStore(db)
	metrics := rbac.NewTestMetrics(t)
	sweeper := NewSweeper(store, rbac.NewTestLogger(t), metrics)
	ctx := context.Background()

	now := time.Now().UTC()

	// One code expired inside the sweep window, one still active, one
	// used before expiry (terminal, so never reported as expired).
	user := "alice"
	usedAt := now.Add(-90 * time.Minute)
	codes := []*InviteCode{
		{Code: "SWEEP001", RoleKeys: []string{"mentor:access"}, CreatedBy: "admin",
			CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{Code: "SWEEP002", RoleKeys: []string{"mentor:access"}, CreatedBy: "admin",
			CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Code: "SWEEP003", RoleKeys: []string{"mentor:access"}, CreatedBy: "admin",
			CreatedAt: now.Add(-3 * time.Hour), ExpiresAt: now.Add(-time.Hour),
			UsedBy: &user, UsedAt: &usedAt},
	}
	for _, c := range codes {
		if err := store.Create(ctx, c); err != nil {
			t.Fatalf("failed to seed code %s: %v", c.Code, err)
		}
	}
	// Creation path cannot write terminal columns; set them directly.
	if _, err := db.Exec(
		`UPDATE invite_codes SET used_by = $1, used_at = $2 WHERE code = $3`,
		user, usedAt, "SWEEP003",
	); err != nil {
		t.Fatalf("failed to mark code used: %v", err)
	}

	sweeper.lastRun = now.Add(-2 * time.Hour)

	if got := sweeper.RunOnce(ctx); got != 1 {
		t.Errorf("expected 1 newly expired code, got %d", got)
	}
	if v := testutil.ToFloat64(metrics.InviteCodesExpiredTotal); v != 1 {
		t.Errorf("expected expired counter at 1, got %v", v)
	}

	// A second sweep over the advanced window reports nothing new.
	if got := sweeper.RunOnce(ctx); got != 0 {
		t.Errorf("expected 0 on the second sweep, got %d", got)
	}
}

func TestSweeper_StoreErrorTolerated(t *testing.T) {
	_, _, db := rbac.NewTestRepository(t)
	store := NewStore(db)
	sweeper := NewSweeper(store, rbac.NewTestLogger(t), rbac.NewTestMetrics(t))

	db.Close()

	if got := sweeper.RunOnce(context.Background()); got != 0 {
		t.Errorf("expected sweep to tolerate store failure, got %d", got)
	}
}
