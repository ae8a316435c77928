package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBRecorder writes events to the audit_events table. The table is
// created by the schema migrations alongside the role tables.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder wires a durable recorder onto the service database.
func NewDBRecorder(db *sql.DB) *DBRecorder {
	return &DBRecorder{db: db}
}

// Record implements Recorder.
func (r *DBRecorder) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var roleKeys interface{}
	if len(event.RoleKeys) > 0 {
		raw, err := json.Marshal(event.RoleKeys)
		if err != nil {
			return fmt.Errorf("failed to marshal role keys: %w", err)
		}
		roleKeys = string(raw)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (occurred_at, event_type, status, actor_id, target_id, role_keys, resource_id, request_id, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.Timestamp,
		string(event.EventType),
		string(event.Status),
		nullable(event.ActorID),
		nullable(event.TargetID),
		roleKeys,
		nullable(event.ResourceID),
		nullable(event.RequestID),
		nullable(event.Message),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (r *DBRecorder) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, occurred_at, event_type, status, actor_id, target_id, role_keys, resource_id, request_id, message
		FROM audit_events
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			actor    sql.NullString
			target   sql.NullString
			roleKeys sql.NullString
			resource sql.NullString
			request  sql.NullString
			message  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &e.Status, &actor, &target, &roleKeys, &resource, &request, &message); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.ActorID = actor.String
		e.TargetID = target.String
		e.ResourceID = resource.String
		e.RequestID = request.String
		e.Message = message.String
		if roleKeys.Valid && roleKeys.String != "" {
			if err := json.Unmarshal([]byte(roleKeys.String), &e.RoleKeys); err != nil {
				return nil, fmt.Errorf("failed to decode role keys: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close implements Recorder. The recorder does not own the database
// handle.
func (r *DBRecorder) Close() error { return nil }

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
