package invite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatherhq/gather/pkg/rbac"
)

// Store persists invite codes. State transitions are conditional
// updates: a terminal code can never be claimed or revoked again, no
// matter how many writers race.
type Store struct {
	db *sql.DB
}

// NewStore creates a new invite code store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transaction-owning flows.
func (s *Store) DB() *sql.DB {
	return s.db
}

const codeColumns = "code_id, code, role_keys, created_by, created_at, expires_at, used_by, used_at, revoked_by, revoked_at"

// Create inserts a new invite code row. A code collision returns
// ErrConflict so the caller can regenerate and retry.
func (s *Store) Create(ctx context.Context, c *InviteCode) error {
	roleKeys, err := json.Marshal(c.RoleKeys)
	if err != nil {
		return fmt.Errorf("failed to encode role keys: %w", err)
	}

	query := `
		INSERT INTO invite_codes (code, role_keys, created_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING code_id
	`

	err = s.db.QueryRowContext(ctx, query,
		c.Code,
		string(roleKeys),
		c.CreatedBy,
		c.CreatedAt,
		c.ExpiresAt,
	).Scan(&c.CodeID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invite code %s: %w", c.Code, rbac.ErrConflict)
		}
		return fmt.Errorf("failed to create invite code: %w", err)
	}
	return nil
}

// GetByCode retrieves an invite code by its user-visible code string.
func (s *Store) GetByCode(ctx context.Context, code string) (*InviteCode, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM invite_codes WHERE code = $1", code,
	)
	c, err := scanInviteCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invite code %s: %w", code, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite code: %w", err)
	}
	return c, nil
}

// GetByID retrieves an invite code by its id.
func (s *Store) GetByID(ctx context.Context, codeID int64) (*InviteCode, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+codeColumns+" FROM invite_codes WHERE code_id = $1", codeID,
	)
	c, err := scanInviteCode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invite code %d: %w", codeID, rbac.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invite code %d: %w", codeID, err)
	}
	return c, nil
}

// ClaimIn marks the code used by userID, inside the caller's
// transaction. The update is conditional on the code still being
// redeemable at the claim instant, so exactly one of any number of
// concurrent redeemers wins. Returns false when the claim lost.
func (s *Store) ClaimIn(ctx context.Context, ex rbac.Execer, codeID int64, userID string, now time.Time) (bool, error) {
	query := `
		UPDATE invite_codes
		SET used_by = $1, used_at = $2
		WHERE code_id = $3
		  AND used_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $4
	`

	res, err := ex.ExecContext(ctx, query, userID, now, codeID, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim invite code %d: %w", codeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim invite code %d: %w", codeID, err)
	}
	return n == 1, nil
}

// MarkRevoked marks the code revoked by adminID. Conditional on the
// code not having reached a terminal state. Returns false when the code
// was already used or revoked.
func (s *Store) MarkRevoked(ctx context.Context, codeID int64, adminID string, now time.Time) (bool, error) {
	query := `
		UPDATE invite_codes
		SET revoked_by = $1, revoked_at = $2
		WHERE code_id = $3
		  AND used_at IS NULL
		  AND revoked_at IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, adminID, now, codeID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke invite code %d: %w", codeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to revoke invite code %d: %w", codeID, err)
	}
	return n == 1, nil
}

// statusPredicate translates a derived status into the SQL conditions
// that select it. The returned clause references placeholders starting
// at argIndex.
func statusPredicate(status Status, now time.Time, argIndex int) (string, []interface{}) {
	switch status {
	case StatusUsed:
		return "used_at IS NOT NULL", nil
	case StatusRevoked:
		return "revoked_at IS NOT NULL", nil
	case StatusExpired:
		return fmt.Sprintf("used_at IS NULL AND revoked_at IS NULL AND expires_at <= $%d", argIndex),
			[]interface{}{now}
	case StatusActive:
		return fmt.Sprintf("used_at IS NULL AND revoked_at IS NULL AND expires_at > $%d", argIndex),
			[]interface{}{now}
	default:
		return "", nil
	}
}

// List returns one page of invite codes, newest first, optionally
// filtered by derived status (empty status means all).
func (s *Store) List(ctx context.Context, status Status, now time.Time, limit, offset int) ([]*InviteCode, error) {
	var sb strings.Builder
	sb.WriteString("SELECT " + codeColumns + " FROM invite_codes")

	clause, args := statusPredicate(status, now, 1)
	if clause != "" {
		sb.WriteString(" WHERE " + clause)
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY created_at DESC, code_id DESC LIMIT $%d OFFSET $%d",
		len(args)+1, len(args)+2))
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invite codes: %w", err)
	}
	defer rows.Close()

	var out []*InviteCode
	for rows.Next() {
		c, err := scanInviteCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite code: %w", err)
		}
		out = append(out, c)
	}

	return out, rows.Err()
}

// Count returns the total number of invite codes matching the status
// filter, for pagination.
func (s *Store) Count(ctx context.Context, status Status, now time.Time) (int, error) {
	query := "SELECT COUNT(*) FROM invite_codes"
	clause, args := statusPredicate(status, now, 1)
	if clause != "" {
		query += " WHERE " + clause
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count invite codes: %w", err)
	}
	return count, nil
}

// CountExpiredBetween counts codes whose expiry fell within (from, to]
// without reaching a terminal state. The sweeper uses this to report
// newly expired codes exactly once.
func (s *Store) CountExpiredBetween(ctx context.Context, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM invite_codes
		WHERE used_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $1
		  AND expires_at <= $2
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, from, to).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count expired invite codes: %w", err)
	}
	return count, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInviteCode(row scanner) (*InviteCode, error) {
	var c InviteCode
	var roleKeys string
	var usedBy, revokedBy sql.NullString
	var usedAt, revokedAt sql.NullTime

	err := row.Scan(
		&c.CodeID,
		&c.Code,
		&roleKeys,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.ExpiresAt,
		&usedBy,
		&usedAt,
		&revokedBy,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(roleKeys), &c.RoleKeys); err != nil {
		return nil, fmt.Errorf("corrupt role keys on invite code %d: %w", c.CodeID, err)
	}

	if usedBy.Valid {
		v := usedBy.String
		c.UsedBy = &v
	}
	if usedAt.Valid {
		v := usedAt.Time
		c.UsedAt = &v
	}
	if revokedBy.Valid {
		v := revokedBy.String
		c.RevokedBy = &v
	}
	if revokedAt.Valid {
		v := revokedAt.Time
		c.RevokedAt = &v
	}

	return &c, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
