package domain

import "time"

// Session is the result of a successful login. The token is self-contained and
// is never persisted server-side.
type Session struct {
	Token     string       `json:"token"`
	UserID    string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *UserSummary `json:"user"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}
