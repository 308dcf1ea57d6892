package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, userId string, documentID string) (Document, error)
	ListByUser(ctx context.Context, userId string, limit, offset int) ([]Document, error)
	// DeleteByUser removes every document owned by the user and returns
	// the removed rows so callers can drop the stored objects too.
	DeleteByUser(ctx context.Context, userId string) ([]Document, error)
}
