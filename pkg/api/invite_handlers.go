package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gatherhq/gather/pkg/audit"
	"github.com/gatherhq/gather/pkg/httputil"
	"github.com/gatherhq/gather/pkg/invite"
	"github.com/gatherhq/gather/pkg/middleware"
	"github.com/gatherhq/gather/pkg/rbac"
)

type createInviteRequest struct {
	RoleKeys       []string `json:"roleKeys"`
	ExpiresInHours int      `json:"expiresInHours,omitempty"`
}

type inviteCodeRequest struct {
	Code string `json:"code"`
}

// createInvite handles POST /api/v1/invites.
func (s *Server) createInvite(w http.ResponseWriter, r *http.Request) {
	var req createInviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.GetUserID(r)
	code, err := s.invites.CreateInvite(r.Context(), caller, req.RoleKeys, req.ExpiresInHours)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrMalformedKey):
			httputil.WriteBadRequest(w, err.Error())
		case errors.Is(err, rbac.ErrNotFound):
			httputil.WriteBadRequest(w, "one or more role keys do not resolve to an existing role")
		default:
			s.log.WithError(err).Error("invite creation failed")
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.audit(r, audit.Event{
		EventType:  audit.EventTypeInviteCreate,
		Status:     audit.EventStatusSuccess,
		ActorID:    caller,
		RoleKeys:   code.RoleKeys,
		ResourceID: code.Code,
	})
	httputil.WriteCreated(w, code)
}

// validateInvite handles POST /api/v1/invites/validate. Pure read:
// reports redeemability without claiming the code.
func (s *Server) validateInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteCodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.invites.ValidateInviteCode(r.Context(), req.Code)
	if err != nil {
		s.log.WithError(err).Warn("invite validation failed")
		httputil.WriteServiceUnavailable(w, "validation unavailable")
		return
	}

	httputil.WriteSuccess(w, result)
}

// redeemInvite handles POST /api/v1/invites/redeem. The redeeming user
// is the authenticated caller; the grants land atomically with the
// claim.
func (s *Server) redeemInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteCodeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	caller := middleware.GetUserID(r)
	code, err := s.invites.Redeem(r.Context(), req.Code, caller)
	if err != nil {
		switch {
		case errors.Is(err, rbac.ErrMalformedKey):
			httputil.WriteBadRequest(w, "invalid code format")
		case errors.Is(err, invite.ErrNotRedeemable):
			// A stream of these from one caller is a probing signal.
			s.audit(r, audit.Event{
				EventType: audit.EventTypeInviteRedeem,
				Status:    audit.EventStatusFailure,
				ActorID:   caller,
				Message:   "code not redeemable",
			})
			httputil.WriteConflict(w, "invite code is not redeemable")
		default:
			s.log.WithError(err).WithField("user_id", caller).Error("invite redemption failed")
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.audit(r, audit.Event{
		EventType:  audit.EventTypeInviteRedeem,
		Status:     audit.EventStatusSuccess,
		ActorID:    caller,
		TargetID:   caller,
		RoleKeys:   code.RoleKeys,
		ResourceID: code.Code,
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"code":     code.Code,
		"roleKeys": code.RoleKeys,
		"redeemed": true,
	})
}

// listInvites handles GET /api/v1/invites.
func (s *Server) listInvites(w http.ResponseWriter, r *http.Request) {
	status := invite.Status(httputil.ParseQueryString(r, "status", ""))
	page := httputil.ParsePagination(r, 50, 100)

	result, err := s.invites.ListInviteCodes(r.Context(), status, page.Limit, page.Offset)
	if err != nil {
		if errors.Is(err, rbac.ErrMalformedKey) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		s.log.WithError(err).Error("invite listing failed")
		httputil.WriteServiceUnavailable(w, "invite listing unavailable")
		return
	}

	httputil.WriteSuccess(w, result)
}

// revokeInvite handles POST /api/v1/invites/{codeId}/revoke.
func (s *Server) revokeInvite(w http.ResponseWriter, r *http.Request) {
	codeID, ok := httputil.ParsePathInt64OrError(w, r, "codeId")
	if !ok {
		return
	}

	caller := middleware.GetUserID(r)
	if err := s.invites.RevokeInvite(r.Context(), caller, codeID); err != nil {
		switch {
		case errors.Is(err, rbac.ErrNotFound):
			httputil.WriteNotFound(w, "invite code does not exist")
		case errors.Is(err, rbac.ErrConflict):
			httputil.WriteConflict(w, err.Error())
		default:
			s.log.WithError(err).WithField("code_id", codeID).Error("invite revocation failed")
			httputil.WriteInternalError(w, err)
		}
		return
	}

	s.audit(r, audit.Event{
		EventType:  audit.EventTypeInviteRevoke,
		Status:     audit.EventStatusSuccess,
		ActorID:    caller,
		ResourceID: strconv.FormatInt(codeID, 10),
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"codeId":  codeID,
		"revoked": true,
	})
}
