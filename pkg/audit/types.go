package audit

import "time"

// EventType categorizes an audit event.
type EventType string

const (
	EventTypeRoleCreate   EventType = "authz.role_create"
	EventTypeRoleGrant    EventType = "authz.role_grant"
	EventTypeRoleRevoke   EventType = "authz.role_revoke"
	EventTypeInviteCreate EventType = "invite.create"
	EventTypeInviteRedeem EventType = "invite.redeem"
	EventTypeInviteRevoke EventType = "invite.revoke"
)

// EventStatus is the outcome of the audited operation.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event is one entry in the audit trail. ActorID is the user who
// performed the operation; TargetID the user it affected, when any.
type Event struct {
	ID         int64       `json:"id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	EventType  EventType   `json:"eventType"`
	Status     EventStatus `json:"status"`
	ActorID    string      `json:"actorId,omitempty"`
	TargetID   string      `json:"targetId,omitempty"`
	RoleKeys   []string    `json:"roleKeys,omitempty"`
	ResourceID string      `json:"resourceId,omitempty"`
	RequestID  string      `json:"requestId,omitempty"`
	Message    string      `json:"message,omitempty"`
}
