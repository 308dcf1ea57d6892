package sessions

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"swisscv-backend/internal/shared/auth"
	"swisscv-backend/internal/shared/telemetry"
)

// DocumentPurger removes a principal's documents and stored objects.
type DocumentPurger interface {
	RemoveAllForUser(ctx context.Context, userID string) (int, error)
}

// ConversionPurger removes a principal's conversions.
type ConversionPurger interface {
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// Service creates, introspects, and tears down sessions. Teardown and
// the expiry sweeper purge the session's documents, conversions, and
// stored objects so nothing outlives the run.
type Service struct {
	Repo           Repo
	Docs           DocumentPurger
	Conversions    ConversionPurger
	AccessPassword string
	TTL            time.Duration
}

// CreateInput carries the session request.
type CreateInput struct {
	Password string
	Label    string
}

// Create mints a session and its bearer token. When an access password
// is configured, a missing or wrong password is rejected.
func (s *Service) Create(ctx context.Context, in CreateInput) (Session, string, error) {
	if s.AccessPassword != "" {
		if subtle.ConstantTimeCompare([]byte(in.Password), []byte(s.AccessPassword)) != 1 {
			return Session{}, "", ErrWrongPassword
		}
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	now := time.Now().UTC()
	session := Session{
		ID:         uuid.NewString(),
		Label:      strings.TrimSpace(in.Label),
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	session.Principal = "session:" + session.ID

	if err := s.Repo.Create(ctx, session); err != nil {
		return Session{}, "", fmt.Errorf("store session: %w", err)
	}

	token, err := auth.SignSessionToken(auth.Claims{
		Sub: session.Principal,
		Sid: session.ID,
		Iat: now.Unix(),
		Exp: session.ExpiresAt.Unix(),
	})
	if err != nil {
		return Session{}, "", fmt.Errorf("sign session token: %w", err)
	}

	telemetry.Info("sessions.created", map[string]any{
		"session_id": session.ID,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})

	return session, token, nil
}

// Get returns a live session and records the activity. Expired rows
// are reported as not found.
func (s *Service) Get(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrNotFound
	}
	session, err := s.Repo.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	now := time.Now().UTC()
	if session.Expired(now) {
		return Session{}, ErrNotFound
	}
	if err := s.Repo.Touch(ctx, sessionID, now); err != nil && !errors.Is(err, ErrNotFound) {
		telemetry.Warn("sessions.touch_failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
	}
	session.LastSeenAt = now
	return session, nil
}

// TeardownResult reports what a teardown removed.
type TeardownResult struct {
	Documents   int `json:"deletedDocuments"`
	Conversions int `json:"deletedConversions"`
}

// Teardown deletes the session row and everything the principal owns.
// It also serves guest principals that never had a session row.
func (s *Service) Teardown(ctx context.Context, sessionID, principal string) (TeardownResult, error) {
	var result TeardownResult

	if s.Docs != nil {
		n, err := s.Docs.RemoveAllForUser(ctx, principal)
		if err != nil {
			return result, fmt.Errorf("purge documents: %w", err)
		}
		result.Documents = n
	}
	if s.Conversions != nil {
		n, err := s.Conversions.DeleteByUser(ctx, principal)
		if err != nil {
			return result, fmt.Errorf("purge conversions: %w", err)
		}
		result.Conversions = n
	}

	if sessionID != "" {
		if err := s.Repo.Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
			return result, fmt.Errorf("delete session: %w", err)
		}
	}

	telemetry.Info("sessions.teardown", map[string]any{
		"session_id":          sessionID,
		"deleted_documents":   result.Documents,
		"deleted_conversions": result.Conversions,
	})

	return result, nil
}

// PurgeExpired tears down every expired session and returns how many
// were removed.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	expired, err := s.Repo.ExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, session := range expired {
		if _, err := s.Teardown(ctx, session.ID, session.Principal); err != nil {
			telemetry.Error("sessions.purge_failed", map[string]any{
				"session_id": session.ID,
				"error":      err.Error(),
			})
			continue
		}
		purged++
	}
	return purged, nil
}

// StartSweeper purges expired sessions on the given interval until the
// context is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				purged, err := s.PurgeExpired(ctx)
				if err != nil {
					telemetry.Error("sessions.sweep_failed", map[string]any{"error": err.Error()})
					continue
				}
				if purged > 0 {
					telemetry.Info("sessions.swept", map[string]any{"purged": purged})
				}
			}
		}
	}()
}
