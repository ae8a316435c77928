// Package rbac implements the role model, permission resolution and
// cache-consistency discipline every other gather feature depends on.
//
// Roles are identified by a canonical role key derived from a
// namespace, an optional subject id and an action, e.g.
// "channel:42:post" or "global:create-invite". The Repository wraps the
// durable PostgreSQL store with a Redis cache-aside layer; Redis is
// never authoritative and may disappear without affecting correctness.
// The Engine resolves permission checks against a user's role-key set
// plus a static, namespace-keyed implication table.
//
// Every read that gates authorization fails closed: a store error or a
// timeout is a deny, never an allow.
package rbac
