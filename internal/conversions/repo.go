package conversions

import (
	"context"
	"time"

	cvmodel "swisscv-backend/cv/model"
)

// Repo defines persistence operations for conversions. Updates are
// granular so the background pipeline can record progress as it goes.
type Repo interface {
	Create(ctx context.Context, conv Conversion) error
	GetByID(ctx context.Context, userID string, conversionID string) (Conversion, error)
	SetProcessing(ctx context.Context, conversionID string, stage string, startedAt time.Time) error
	SetStage(ctx context.Context, conversionID string, stage string) error
	SetRewritten(ctx context.Context, conversionID string, rewrittenText string, warnings []string) error
	SetCompleted(ctx context.Context, conversionID string, cv cvmodel.StructuredCV, rawExtraction string, completedAt time.Time) error
	SetFailed(ctx context.Context, conversionID string, errorCode, errorMessage, errorStage, rawExtraction string, completedAt time.Time) error
	UpdateCV(ctx context.Context, userID string, conversionID string, cv cvmodel.StructuredCV) error
	// Requeue resets a failed conversion back to queued, keeping only
	// its inputs. Returns ErrNotRetryable if the row is not failed.
	Requeue(ctx context.Context, userID string, conversionID string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}
