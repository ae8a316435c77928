package invite

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// Status is the derived lifecycle state of an invite code. Used and
// revoked are terminal; expired applies only to codes that never
// reached a terminal state.
type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Valid reports whether the status names a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusUsed, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// CodeLength is the exact length of the user-visible code string.
const CodeLength = 8

// codeAlphabet is the character set codes are drawn from. Uppercase
// letters and digits only, so codes survive being read aloud or typed
// from a screenshot.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var codePattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// ValidCodeFormat reports whether the string is exactly 8 uppercase
// alphanumeric characters.
func ValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}

// GenerateCode returns a new random 8-character code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// InviteCode is a one-time code granting a fixed set of role keys on
// redemption.
type InviteCode struct {
	CodeID    int64      `json:"codeId"`
	Code      string     `json:"code"`
	RoleKeys  []string   `json:"roleKeys"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedBy    *string    `json:"usedBy"`
	UsedAt    *time.Time `json:"usedAt"`
	RevokedBy *string    `json:"revokedBy"`
	RevokedAt *time.Time `json:"revokedAt"`
}

// Status derives the lifecycle state at the given instant. Terminal
// states win over expiry: a code used five minutes before its deadline
// stays used forever.
func (c *InviteCode) Status(now time.Time) Status {
	switch {
	case c.UsedAt != nil:
		return StatusUsed
	case c.RevokedAt != nil:
		return StatusRevoked
	case !now.Before(c.ExpiresAt):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Redeemable reports whether the code can still be redeemed at the
// given instant.
func (c *InviteCode) Redeemable(now time.Time) bool {
	return c.Status(now) == StatusActive
}

// ValidationResult is the outcome of a pure validation read. When
// IsValid is false, Message says why in user-presentable terms.
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	RoleKeys []string `json:"roleKeys,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// ListEntry is an invite code annotated with its derived status, as
// returned by listings.
type ListEntry struct {
	InviteCode
	Status Status `json:"status"`
}

// ListResult is one page of invite codes.
type ListResult struct {
	Data        []ListEntry `json:"data"`
	TotalCount  int         `json:"totalCount"`
	HasMore     bool        `json:"hasMore"`
	HasPrevious bool        `json:"hasPrevious"`
}
