package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	doc := Document{
		ID:               "doc-1",
		UserID:           "user-1",
		Kind:             KindCV,
		FileName:         "cv.txt",
		MimeType:         "text/plain",
		SizeBytes:        42,
		StorageKey:       "abc/cv.txt",
		ExtractedTextKey: "abc/cv.txt.extracted.txt",
		CreatedAt:        time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			doc.ID,
			doc.UserID,
			"cv",
			doc.FileName,
			doc.MimeType,
			doc.SizeBytes,
			doc.StorageKey,
			doc.ExtractedTextKey,
			doc.CreatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("user-1", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetByID(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteByUserReturnsRemovedRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "kind", "file_name", "mime_type", "size_bytes",
		"storage_key", "extracted_text_key", "created_at",
	}).
		AddRow("doc-1", "user-1", "cv", "cv.txt", "text/plain", int64(42), "k1", "k1.extracted.txt", now).
		AddRow("doc-2", "user-1", "note", "note.txt", "text/plain", int64(7), "k2", "k2.extracted.txt", now)

	mock.ExpectQuery("DELETE FROM documents").
		WithArgs("user-1").
		WillReturnRows(rows)

	removed, err := repo.DeleteByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("DeleteByUser: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed rows, got %d", len(removed))
	}
	if removed[0].StorageKey != "k1" || removed[1].Kind != KindNote {
		t.Fatalf("unexpected removed rows: %#v", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
