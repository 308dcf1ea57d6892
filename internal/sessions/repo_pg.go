package sessions

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const sessionColumns = `id, principal, label, created_at, last_seen_at, expires_at`

// Create inserts a new session row.
func (r *PGRepo) Create(ctx context.Context, session Session) error {
	const query = `
INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.DB.ExecContext(ctx, query,
		session.ID,
		session.Principal,
		session.Label,
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
	)
	return err
}

// GetByID returns a session by ID.
func (r *PGRepo) GetByID(ctx context.Context, sessionID string) (Session, error) {
	const query = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE id = $1
LIMIT 1`

	var session Session
	err := r.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.Principal,
		&session.Label,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return session, nil
}

// Touch records activity on the session.
func (r *PGRepo) Touch(ctx context.Context, sessionID string, lastSeenAt time.Time) error {
	const query = `
UPDATE sessions SET last_seen_at = $2 WHERE id = $1`

	res, err := r.DB.ExecContext(ctx, query, sessionID, lastSeenAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the session row.
func (r *PGRepo) Delete(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM sessions WHERE id = $1`

	res, err := r.DB.ExecContext(ctx, query, sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpiredBefore returns sessions whose expiry lies at or before cutoff.
func (r *PGRepo) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	const query = `
SELECT ` + sessionColumns + `
FROM sessions
WHERE expires_at <= $1
ORDER BY expires_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(
			&session.ID,
			&session.Principal,
			&session.Label,
			&session.CreatedAt,
			&session.LastSeenAt,
			&session.ExpiresAt,
		); err != nil {
			return nil, err
		}
		expired = append(expired, session)
	}
	return expired, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
