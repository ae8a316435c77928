package invite

import (
	"testing"
	"time"
)

func TestValidCodeFormat(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"ABCD1234", true},
		{"ZZZZZZZZ", true},
		{"00000000", true},
		{"abcd1234", false},
		{"ABCD123", false},
		{"ABCD12345", false},
		{"ABCD-123", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := ValidCodeFormat(tt.code); got != tt.valid {
			t.Errorf("ValidCodeFormat(%q) = %v, want %v", tt.code, got, tt.valid)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		if !ValidCodeFormat(code) {
			t.Fatalf("generated code %q does not match the required format", code)
		}
		seen[code] = true
	}
	if len(seen) < 50 {
		t.Errorf("expected 50 distinct codes, got %d", len(seen))
	}
}

func TestInviteCode_Status(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	user := "alice"

	tests := []struct {
		name string
		code InviteCode
		want Status
	}{
		{
			name: "active",
			code: InviteCode{ExpiresAt: future},
			want: StatusActive,
		},
		{
			name: "expired",
			code: InviteCode{ExpiresAt: past},
			want: StatusExpired,
		},
		{
			name: "used wins over expiry",
			code: InviteCode{ExpiresAt: past, UsedBy: &user, UsedAt: &past},
			want: StatusUsed,
		},
		{
			name: "revoked wins over expiry",
			code: InviteCode{ExpiresAt: past, RevokedBy: &user, RevokedAt: &past},
			want: StatusRevoked,
		},
		{
			name: "expires exactly now",
			code: InviteCode{ExpiresAt: now},
			want: StatusExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Status(now); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
			wantRedeemable := tt.want == StatusActive
			if got := tt.code.Redeemable(now); got != wantRedeemable {
				t.Errorf("Redeemable() = %v, want %v", got, wantRedeemable)
			}
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusActive, StatusUsed, StatusExpired, StatusRevoked} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if Status("pending").Valid() {
		t.Error("unknown status must be invalid")
	}
}
