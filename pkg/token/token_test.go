package token

import (
	"strings"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	m := NewManager("secret", "taskflow", time.Hour)

	tok, exp, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Errorf("expiry should be in the future, got %v", exp)
	}

	userID, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID: got %s, want user-1", userID)
	}
}

func TestParseRejects(t *testing.T) {
	m := NewManager("secret", "taskflow", time.Hour)
	valid, _, err := m.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, err := NewManager("secret", "taskflow", time.Hour, WithClock(past)).Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	otherSecret, _, _ := NewManager("other", "taskflow", time.Hour).Issue("user-1")
	otherIssuer, _, _ := NewManager("secret", "someone-else", time.Hour).Issue("user-1")

	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"malformed", "not-a-token"},
		{"expired", expired},
		{"wrong secret", otherSecret},
		{"wrong issuer", otherIssuer},
		{"tampered payload", tampered},
		{"alg none", "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0." + parts[1] + "."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Parse(tt.token); err != ErrInvalid {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestIssueRequiresUser(t *testing.T) {
	m := NewManager("secret", "", 0)
	if m.TTL() != 24*time.Hour {
		t.Errorf("default TTL: got %v, want 24h", m.TTL())
	}
	if _, _, err := m.Issue(""); err != ErrInvalid {
		t.Errorf("expected ErrInvalid for empty user, got %v", err)
	}
}
