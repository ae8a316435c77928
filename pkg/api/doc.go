// Package api exposes the HTTP surface of the access-control service.
//
// Every mutating route passes through the permission gate before the
// handler runs; the handlers themselves only translate between HTTP
// and the rbac/invite services. Identity arrives as a trusted header
// set by the upstream proxy, so no route performs authentication.
//
// Route groups:
//
//   - /api/v1/roles, /api/v1/grants, /api/v1/check: role
//     administration, gated on global:admin
//   - /api/v1/me/permissions: the caller's materialized permission set
//   - /api/v1/channels/{channelId}/...: channel bootstrap and the
//     channel-scoped post gate
//   - /api/v1/invites: invite-code lifecycle; validate and redeem are
//     reachable without an admin role and rate limited per client
//   - /healthz, /metrics: operational endpoints
package api
