package sessions

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores sessions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Session
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Session)}
}

// Create stores the session.
func (r *MemoryRepo) Create(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[session.ID] = session
	return nil
}

// GetByID returns a session by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

// Touch records activity on the session.
func (r *MemoryRepo) Touch(ctx context.Context, sessionID string, lastSeenAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.LastSeenAt = lastSeenAt
	r.byID[sessionID] = session
	return nil
}

// Delete removes the session.
func (r *MemoryRepo) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[sessionID]; !ok {
		return ErrNotFound
	}
	delete(r.byID, sessionID)
	return nil
}

// ExpiredBefore returns sessions whose expiry lies at or before cutoff.
func (r *MemoryRepo) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var expired []Session
	for _, session := range r.byID {
		if !session.ExpiresAt.After(cutoff) {
			expired = append(expired, session)
		}
	}
	return expired, nil
}

var _ Repo = (*MemoryRepo)(nil)
