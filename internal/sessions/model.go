package sessions

import "time"

// Session is the explicit per-run state owner. Every document and
// conversion created during a run belongs to the session's principal
// and is removed with it at teardown or expiry.
type Session struct {
	ID         string
	Principal  string
	Label      string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the session's TTL has elapsed.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
