package documents

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"swisscv-backend/internal/extract"
	"swisscv-backend/internal/shared/storage/object"
	"swisscv-backend/internal/shared/telemetry"
)

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
}

// NewService constructs a Service.
func NewService(store object.ObjectStore, repo DocumentsRepo) *Service {
	return &Service{Store: store, Repo: repo}
}

// Upload stores the original file, extracts its text inline, and
// records the document. A failed extraction rejects the upload and
// leaves nothing behind.
func (s *Service) Upload(ctx context.Context, userId string, kind Kind, fileName string, mimeType string, r io.Reader) (Document, error) {
	if userId == "" {
		return Document{}, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if strings.TrimSpace(fileName) == "" {
		return Document{}, fmt.Errorf("%w: file name required", ErrInvalidInput)
	}
	if kind == "" {
		kind = KindCV
	}

	storageKey, size, detectedMime, err := s.Store.Save(ctx, userId, fileName, r)
	if err != nil {
		return Document{}, fmt.Errorf("save upload: %w", err)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = detectedMime
	}

	text, extractedKey, err := extract.ExtractText(ctx, s.Store, storageKey, mimeType, fileName)
	if err != nil {
		s.dropObjects(ctx, storageKey)
		return Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		s.dropObjects(ctx, storageKey, extractedKey)
		return Document{}, fmt.Errorf("%w: document contains no extractable text", extract.ErrExtraction)
	}

	doc := Document{
		ID:               uuid.NewString(),
		UserID:           userId,
		Kind:             kind,
		FileName:         fileName,
		MimeType:         mimeType,
		SizeBytes:        size,
		StorageKey:       storageKey,
		ExtractedTextKey: extractedKey,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		s.dropObjects(ctx, storageKey, extractedKey)
		return Document{}, fmt.Errorf("record document: %w", err)
	}

	telemetry.Info("documents.uploaded", map[string]any{
		"document_id": doc.ID,
		"user_id":     userId,
		"kind":        string(kind),
		"mime_type":   mimeType,
		"size_bytes":  size,
		"text_chars":  len(text),
	})

	return doc, nil
}

// Get returns a document by ID for a user.
func (s *Service) Get(ctx context.Context, userId string, documentID string) (Document, error) {
	if userId == "" || documentID == "" {
		return Document{}, fmt.Errorf("%w: user id and document id required", ErrInvalidInput)
	}
	return s.Repo.GetByID(ctx, userId, documentID)
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userId string, limit, offset int) ([]Document, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	return s.Repo.ListByUser(ctx, userId, limit, offset)
}

// Text returns the extracted text of a document. Rows recorded without
// a derived copy are extracted again from the original.
func (s *Service) Text(ctx context.Context, doc Document) (string, error) {
	if doc.ExtractedTextKey == "" {
		text, _, err := extract.ExtractText(ctx, s.Store, doc.StorageKey, doc.MimeType, doc.FileName)
		return text, err
	}

	body, err := s.Store.Open(ctx, doc.ExtractedTextKey)
	if err != nil {
		return "", fmt.Errorf("open extracted text key=%s: %w", doc.ExtractedTextKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read extracted text key=%s: %w", doc.ExtractedTextKey, err)
	}
	return string(raw), nil
}

// RemoveAllForUser deletes the user's documents and their stored
// objects. Part of session teardown.
func (s *Service) RemoveAllForUser(ctx context.Context, userId string) (int, error) {
	if userId == "" {
		return 0, fmt.Errorf("%w: user id required", ErrInvalidInput)
	}

	docs, err := s.Repo.DeleteByUser(ctx, userId)
	if err != nil {
		return 0, err
	}
	for _, doc := range docs {
		s.dropObjects(ctx, doc.StorageKey, doc.ExtractedTextKey)
	}
	return len(docs), nil
}

// dropObjects best-effort deletes storage objects, logging failures
// instead of surfacing them.
func (s *Service) dropObjects(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.Store.Delete(ctx, key); err != nil {
			telemetry.Error("documents.object_delete_failed", map[string]any{
				"storage_key": key,
				"error":       err.Error(),
			})
		}
	}
}
