package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/rbac"
)

type createRoleRequest struct {
	RoleKey     string `json:"roleKey"`
	Description string `json:"description,omitempty"`
	ChannelID   *int64 `json:"channelId,omitempty"`
}

type grantRequest struct {
	UserID  string `json:"userId"`
	RoleKey string `json:"roleKey"`
}

type checkRequest struct {
	UserID        string `json:"userId"`
	PermissionKey string `json:"permissionKey"`
}

// createRole handles POST /api/v1/roles.
func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	namespace, subjectID, action, err := rbac.ParseRoleKey(req.RoleKey)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var subject *string
	if subjectID != "" {
		subject = &subjectID
	}

	role, err := s.engine.Repository().CreateRole(r.Context(), req.RoleKey, action, namespace, subject, req.ChannelID)
	if err != nil {
		if errors.Is(err, rbac.ErrConflict) {
			httputil.WriteConflict(w, "role key already exists")
			return
		}
		s.log.WithError(err).WithField("role_key", req.RoleKey).Error("role creation failed")
		httputil.WriteInternalError(w, err)
		return
	}

	s.audit(r, audit.Event{
		EventType:  audit.EventTypeRoleCreate,
		Status:     audit.EventStatusSuccess,
		ActorID:    middleware.GetUserID(r),
		ResourceID: role.RoleKey,
	})
	httputil.WriteCreated(w, role)
}

// grantRole handles POST /api/v1/grants.
func (s *Server) grantRole(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "userId") {
		return
	}

	roleID, found := s.engine.Repository().RoleIDForKey(r.Context(), req.RoleKey)
	if !found {
		httputil.WriteNotFound(w, "role key does not exist")
		return
	}

	granting := middleware.GetUserID(r)
	if ok := s.engine.Repository().GrantRole(r.Context(), granting, req.UserID, roleID, req.RoleKey); !ok {
		httputil.WriteServiceUnavailable(w, "grant could not be persisted")
		return
	}

	s.audit(r, audit.Event{
		EventType: audit.EventTypeRoleGrant,
		Status:    audit.EventStatusSuccess,
		ActorID:   granting,
		TargetID:  req.UserID,
		RoleKeys:  []string{req.RoleKey},
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"userId":  req.UserID,
		"roleKey": req.RoleKey,
		"granted": true,
	})
}

// revokeRole handles DELETE /api/v1/grants.
func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "userId") {
		return
	}

	roleID, found := s.engine.Repository().RoleIDForKey(r.Context(), req.RoleKey)
	if !found {
		httputil.WriteNotFound(w, "role key does not exist")
		return
	}

	if err := s.engine.Repository().RevokeRole(r.Context(), req.UserID, roleID); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httputil.WriteNotFound(w, "assignment does not exist")
			return
		}
		s.log.WithError(err).WithField("role_key", req.RoleKey).Error("role revoke failed")
		httputil.WriteInternalError(w, err)
		return
	}

	s.audit(r, audit.Event{
		EventType: audit.EventTypeRoleRevoke,
		Status:    audit.EventStatusSuccess,
		ActorID:   middleware.GetUserID(r),
		TargetID:  req.UserID,
		RoleKeys:  []string{req.RoleKey},
	})
	httputil.WriteNoContent(w)
}

// checkPermission handles POST /api/v1/check. Admin-only introspection:
// reports whether an arbitrary subject holds a permission.
func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "userId") {
		return
	}

	allowed, err := s.engine.Validate(r.Context(), req.UserID, req.PermissionKey)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"userId":        req.UserID,
		"permissionKey": req.PermissionKey,
		"allowed":       allowed,
	})
}

// myPermissions handles GET /api/v1/me/permissions. Returns the full
// implied closure of the caller's role set.
func (s *Server) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	keys, err := s.engine.GetAllImpliedRolesForUser(r.Context(), userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("permission listing failed")
		httputil.WriteServiceUnavailable(w, "permissions unavailable")
		return
	}
	sort.Strings(keys)

	httputil.WriteSuccess(w, map[string]interface{}{
		"userId":   userID,
		"roleKeys": keys,
	})
}

// subjectsForRole handles GET /api/v1/roles/{roleKey}/users. Used by
// broadcast fan-out to enumerate an audience.
func (s *Server) subjectsForRole(w http.ResponseWriter, r *http.Request) {
	roleKey, ok := httputil.ParsePathStringOrError(w, r, "roleKey")
	if !ok {
		return
	}
	if _, _, _, err := rbac.ParseRoleKey(roleKey); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	userIDs, err := s.engine.Repository().SubjectsForRole(r.Context(), roleKey)
	if err != nil {
		s.log.WithError(err).WithField("role_key", roleKey).Error("subject listing failed")
		httputil.WriteServiceUnavailable(w, "subject listing unavailable")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"roleKey": roleKey,
		"userIds": userIDs,
		"count":   len(userIDs),
	})
}

type bootstrapChannelRequest struct {
	Action string `json:"action,omitempty"`
}

// bootstrapChannel handles POST /api/v1/channels/{channelId}/roles.
// Creating a channel creates its admin role and grants it to the
// creator in the same step, so the channel never exists without a
// controlling role.
func (s *Server) bootstrapChannel(w http.ResponseWriter, r *http.Request) {
	channelID, ok := httputil.ParsePathInt64OrError(w, r, "channelId")
	if !ok {
		return
	}
	if !httputil.RequirePositive(w, channelID, "channelId") {
		return
	}

	var req bootstrapChannelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Action == "" {
		req.Action = "admin"
	}

	caller := middleware.GetUserID(r)
	roleKey := rbac.ChannelRoleKey(channelID, req.Action)

	role, err := s.engine.CreateAndAssignChannelRole(r.Context(), caller, caller, roleKey, req.Action, rbac.NamespaceChannel, channelID)
	if err != nil {
		s.log.WithError(err).WithField("role_key", roleKey).Error("channel role bootstrap failed")
		httputil.WriteServiceUnavailable(w, "channel role could not be created")
		return
	}

	s.audit(r, audit.Event{
		EventType:  audit.EventTypeRoleGrant,
		Status:     audit.EventStatusSuccess,
		ActorID:    caller,
		TargetID:   caller,
		RoleKeys:   []string{roleKey},
		ResourceID: roleKey,
	})
	httputil.WriteCreated(w, role)
}

type postMessageRequest struct {
	Body string `json:"body"`
}

// postChannelMessage handles POST /api/v1/channels/{channelId}/messages.
// The permission key is derived from the path, so the gate runs inside
// the handler rather than as route middleware.
func (s *Server) postChannelMessage(w http.ResponseWriter, r *http.Request) {
	channelID, ok := httputil.ParsePathInt64OrError(w, r, "channelId")
	if !ok {
		return
	}

	var req postMessageRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Body, "body") {
		return
	}

	userID := middleware.GetUserID(r)
	allowed, err := s.engine.Validate(r.Context(), userID, rbac.ChannelRoleKey(channelID, "post"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !allowed {
		httputil.WriteForbidden(w, "insufficient permission")
		return
	}

	// Delivery is owned by the messaging service; this service only
	// answers the gate.
	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"channelId": channelID,
		"accepted":  true,
	})
}
