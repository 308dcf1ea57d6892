package sessions

import (
	"context"
	"time"
)

// Repo defines persistence operations for sessions. Rows hold only
// transient, TTL-bounded state; the sweeper prunes them via
// ExpiredBefore + Delete.
type Repo interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, sessionID string) (Session, error)
	// Touch records activity without moving the expiry.
	Touch(ctx context.Context, sessionID string, lastSeenAt time.Time) error
	Delete(ctx context.Context, sessionID string) error
	// ExpiredBefore returns every session whose expiry lies at or
	// before the cutoff, so callers can purge the owned data too.
	ExpiredBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}
