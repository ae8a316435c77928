// Package invite converts one-time signup codes into bounded sets of
// role grants.
//
// A code is redeemable while it has not expired and has not reached a
// terminal state. The two terminal states, used and revoked, are
// mutually exclusive and each is entered exactly once. Redemption is
// atomic: the code is claimed and every listed role granted in a single
// transaction, so a half-redeemed code cannot exist.
//
// # Related Packages
//
//   - pkg/rbac: role resolution and the assignment store redemption
//     grants through
package invite
