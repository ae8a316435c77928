package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store handles role and assignment persistence. It is the only writer
// of the roles and user_roles tables; the cache layer never originates
// data.
type Store struct {
	db *sql.DB
}

// NewStore creates a new role store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Execer is the subset of sql.DB/sql.Tx the store needs for writes that
// must participate in a caller-owned transaction (invite redemption).
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// RoleKeyID pairs a role key with its id, for bulk cache warm-up.
type RoleKeyID struct {
	Key string
	ID  int64
}

// CreateRole inserts a new role row. A duplicate role key returns
// ErrConflict.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (namespace, subject_id, action, role_key, channel_id, metadata, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING role_id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		role.Namespace,
		role.SubjectID,
		role.Action,
		role.RoleKey,
		role.ChannelID,
		nullableJSON(role.Metadata),
		role.Description,
		now,
		now,
	).Scan(&role.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("role %s: %w", role.RoleKey, ErrConflict)
		}
		return fmt.Errorf("failed to create role %s: %w", role.RoleKey, err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRoleIDByKey resolves a role key to its id. Returns ErrNotFound if
// no such role exists.
func (s *Store) GetRoleIDByKey(ctx context.Context, roleKey string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT role_id FROM roles WHERE role_key = $1`, roleKey,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("role %s: %w", roleKey, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve role %s: %w", roleKey, err)
	}
	return id, nil
}

// GetRoleByKey retrieves a full role row by key.
func (s *Store) GetRoleByKey(ctx context.Context, roleKey string) (*Role, error) {
	query := `
		SELECT role_id, namespace, subject_id, action, role_key, channel_id, metadata, description, created_at, updated_at
		FROM roles
		WHERE role_key = $1
	`

	var role Role
	var subjectID sql.NullString
	var channelID sql.NullInt64
	var metadata sql.NullString

	err := s.db.QueryRowContext(ctx, query, roleKey).Scan(
		&role.ID,
		&role.Namespace,
		&subjectID,
		&role.Action,
		&role.RoleKey,
		&channelID,
		&metadata,
		&role.Description,
		&role.CreatedAt,
		&role.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %s: %w", roleKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", roleKey, err)
	}

	if subjectID.Valid {
		v := subjectID.String
		role.SubjectID = &v
	}
	if channelID.Valid {
		v := channelID.Int64
		role.ChannelID = &v
	}
	if metadata.Valid && metadata.String != "" {
		role.Metadata = []byte(metadata.String)
	}

	return &role, nil
}

// GetRoleKeysForUser returns the role keys a user directly holds, as a
// deduplicated set.
func (s *Store) GetRoleKeysForUser(ctx context.Context, userID string) (RoleSet, error) {
	query := `
		SELECT DISTINCT r.role_key
		FROM user_roles ur
		INNER JOIN roles r ON ur.role_id = r.role_id
		WHERE ur.user_id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for user %s: %w", userID, err)
	}
	defer rows.Close()

	set := make(RoleSet)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan role key: %w", err)
		}
		set.Add(key)
	}

	return set, rows.Err()
}

// GetUserIDsForRole reverse-lookup used for fan-out operations like
// broadcast. Deliberately uncached: not on the authorization hot path.
func (s *Store) GetUserIDsForRole(ctx context.Context, roleKey string) ([]string, error) {
	query := `
		SELECT ur.user_id
		FROM roles r
		INNER JOIN user_roles ur ON r.role_id = ur.role_id
		WHERE r.role_key = $1
	`

	rows, err := s.db.QueryContext(ctx, query, roleKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get users for role %s: %w", roleKey, err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	return userIDs, rows.Err()
}

// ListRoleKeys enumerates up to limit distinct role keys with their
// ids, oldest first, for cache warm-up.
func (s *Store) ListRoleKeys(ctx context.Context, limit int) ([]RoleKeyID, error) {
	query := `
		SELECT role_key, role_id
		FROM roles
		ORDER BY role_id
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list role keys: %w", err)
	}
	defer rows.Close()

	var out []RoleKeyID
	for rows.Next() {
		var rk RoleKeyID
		if err := rows.Scan(&rk.Key, &rk.ID); err != nil {
			return nil, fmt.Errorf("failed to scan role key: %w", err)
		}
		out = append(out, rk)
	}

	return out, rows.Err()
}

// UpsertAssignment grants a role. A conflict on the composite
// (user_id, role_id) key is a no-op, so re-granting an already-held
// role is safe and side-effect-free.
func (s *Store) UpsertAssignment(ctx context.Context, a Assignment) error {
	return s.UpsertAssignmentIn(ctx, s.db, a)
}

// UpsertAssignmentIn is UpsertAssignment executing against a
// caller-supplied transaction, for flows that must grant atomically
// with other writes.
func (s *Store) UpsertAssignmentIn(ctx context.Context, ex Execer, a Assignment) error {
	query := `
		INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, query,
		a.UserID,
		a.RoleID,
		a.AssignedBy,
		assignedAt,
		nullableJSON(a.Metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to grant role %d to %s: %w", a.RoleID, a.UserID, err)
	}
	return nil
}

// DeleteAssignment revokes a role from a user. Returns ErrNotFound when
// the assignment did not exist.
func (s *Store) DeleteAssignment(ctx context.Context, userID string, roleID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke role %d from %s: %w", roleID, userID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("assignment (%s, %d): %w", userID, roleID, ErrNotFound)
	}
	return nil
}

// UserExists reports whether the subject has a profile row.
func (s *Store) UserExists(ctx context.Context, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = $1`, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check user %s: %w", userID, err)
	}
	return count > 0, nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// isUniqueViolation matches both the PostgreSQL duplicate-key message
// and the SQLite one used by the in-memory test database.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}
