package rbac

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Namespace is the resource category a role governs
type Namespace string

const (
	NamespaceGlobal    Namespace = "global"
	NamespaceChannel   Namespace = "channel"
	NamespaceMentor    Namespace = "mentor"
	NamespaceBroadcast Namespace = "broadcast"
	NamespaceReporting Namespace = "reporting"
)

// Namespaces returns every valid namespace.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceGlobal,
		NamespaceChannel,
		NamespaceMentor,
		NamespaceBroadcast,
		NamespaceReporting,
	}
}

// Valid reports whether the namespace is one of the known categories.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceGlobal, NamespaceChannel, NamespaceMentor, NamespaceBroadcast, NamespaceReporting:
		return true
	}
	return false
}

// Well-known role keys
const (
	RoleGlobalAdmin        = "global:admin"
	RoleGlobalCreateInvite = "global:create-invite"
	RoleMentorAccess       = "mentor:access"
	RoleBroadcastSend      = "broadcast:send"
	RoleReportingView      = "reporting:view"
	RoleReportingAssign    = "reporting:assign"
)

// Role is a durable role definition. RoleKey is the only stable handle
// external code may depend on.
type Role struct {
	ID          int64           `json:"role_id"`
	Namespace   Namespace       `json:"namespace"`
	SubjectID   *string         `json:"subject_id,omitempty"`
	Action      string          `json:"action"`
	RoleKey     string          `json:"role_key"`
	ChannelID   *int64          `json:"channel_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Assignment links a subject to a role. The composite (UserID, RoleID)
// key makes grants idempotent.
type Assignment struct {
	UserID     string          `json:"user_id"`
	RoleID     int64           `json:"role_id"`
	AssignedAt time.Time       `json:"assigned_at"`
	AssignedBy *string         `json:"assigned_by,omitempty"` // nil for self-assignment
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// BuildRoleKey derives the canonical role key. An empty subjectID
// yields the unscoped form "{namespace}:{action}".
func BuildRoleKey(namespace Namespace, subjectID, action string) string {
	if subjectID == "" {
		return string(namespace) + ":" + action
	}
	return string(namespace) + ":" + subjectID + ":" + action
}

// ChannelRoleKey derives a channel-scoped role key from the numeric
// channel id.
func ChannelRoleKey(channelID int64, action string) string {
	return fmt.Sprintf("%s:%d:%s", NamespaceChannel, channelID, action)
}

// ParseRoleKey splits a canonical role key into its parts. subjectID is
// empty for the unscoped two-part form.
func ParseRoleKey(key string) (namespace Namespace, subjectID, action string, err error) {
	parts := strings.Split(key, ":")
	switch len(parts) {
	case 2:
		namespace, action = Namespace(parts[0]), parts[1]
	case 3:
		namespace, subjectID, action = Namespace(parts[0]), parts[1], parts[2]
	default:
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}

	if !namespace.Valid() || action == "" || (len(parts) == 3 && subjectID == "") {
		return "", "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return namespace, subjectID, action, nil
}

// RoleSet is a deduplicated, order-irrelevant set of role keys.
type RoleSet map[string]struct{}

// NewRoleSet builds a set from the given keys.
func NewRoleSet(keys ...string) RoleSet {
	s := make(RoleSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s RoleSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Add inserts a key.
func (s RoleSet) Add(key string) {
	s[key] = struct{}{}
}

// Keys returns the members in unspecified order.
func (s RoleSet) Keys() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// ImplicationRules is the static, namespace-keyed table of implied
// actions: holding {ns}:{subject}:{held} implies {ns}:{subject}:{implied}
// for the same subject. The table is configuration data so the rule set
// stays auditable and testable in isolation.
type ImplicationRules map[Namespace]map[string][]string

// DefaultImplicationRules returns the platform rule set: a channel
// admin may post and read that channel. global:admin is handled
// separately by the engine because it implies every permission.
func DefaultImplicationRules() ImplicationRules {
	return ImplicationRules{
		NamespaceChannel: {
			"admin": {"post", "read"},
		},
	}
}

// Implied returns the role keys implied by holding the given key,
// excluding the key itself. Unknown namespaces and actions imply
// nothing.
func (r ImplicationRules) Implied(key string) []string {
	namespace, subjectID, action, err := ParseRoleKey(key)
	if err != nil {
		return nil
	}

	byAction, ok := r[namespace]
	if !ok {
		return nil
	}

	actions, ok := byAction[action]
	if !ok {
		return nil
	}

	implied := make([]string, 0, len(actions))
	for _, a := range actions {
		implied = append(implied, BuildRoleKey(namespace, subjectID, a))
	}
	return implied
}

// Closure expands a resolved role-key set with every implied key. The
// input set is not mutated.
func (r ImplicationRules) Closure(held RoleSet) RoleSet {
	out := make(RoleSet, len(held))
	for key := range held {
		out.Add(key)
		for _, implied := range r.Implied(key) {
			out.Add(implied)
		}
	}
	return out
}

// BuiltinRole describes a role seeded at startup.
type BuiltinRole struct {
	Namespace   Namespace
	Action      string
	Description string
}

// BuiltinRoles returns the unscoped roles every deployment needs.
// Channel-scoped roles are created on demand at channel creation.
func BuiltinRoles() []BuiltinRole {
	return []BuiltinRole{
		{NamespaceGlobal, "admin", "Full access to every resource"},
		{NamespaceGlobal, "create-invite", "May create and revoke invite codes"},
		{NamespaceMentor, "access", "May participate in the mentorship programme"},
		{NamespaceBroadcast, "send", "May send platform-wide broadcasts"},
		{NamespaceReporting, "view", "May view reports"},
		{NamespaceReporting, "assign", "May assign reports"},
	}
}
