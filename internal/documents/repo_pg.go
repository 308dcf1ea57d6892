package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const documentColumns = `id, user_id, kind, file_name, mime_type, size_bytes, storage_key, extracted_text_key, created_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (` + documentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		string(doc.Kind),
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		doc.ExtractedTextKey,
		doc.CreatedAt,
	)
	return err
}

// GetByID fetches a document by ID for a user.
func (r *PGRepo) GetByID(ctx context.Context, userId string, documentID string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1 AND id = $2
LIMIT 1`

	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, userId, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByUser lists documents ordered newest-first.
func (r *PGRepo) ListByUser(ctx context.Context, userId string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + documentColumns + `
FROM documents
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userId, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteByUser removes every document for the user and returns them so
// the caller can drop the stored objects.
func (r *PGRepo) DeleteByUser(ctx context.Context, userId string) ([]Document, error) {
	const query = `
DELETE FROM documents
WHERE user_id = $1
RETURNING ` + documentColumns

	rows, err := r.DB.QueryContext(ctx, query, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var kind string
	if err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&kind,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&doc.ExtractedTextKey,
		&doc.CreatedAt,
	); err != nil {
		return Document{}, err
	}
	doc.Kind = Kind(kind)
	return doc, nil
}

var _ DocumentsRepo = (*PGRepo)(nil)
