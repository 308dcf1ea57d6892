package conversions

import (
	"context"
	"sync"
	"time"

	cvmodel "swisscv-backend/cv/model"
)

// MemoryRepo stores conversions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Conversion
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Conversion)}
}

// Create stores the conversion.
func (r *MemoryRepo) Create(ctx context.Context, conv Conversion) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[conv.ID] = conv
	return nil
}

// GetByID returns a conversion owned by the user.
func (r *MemoryRepo) GetByID(ctx context.Context, userID string, conversionID string) (Conversion, error) {
	if err := ctx.Err(); err != nil {
		return Conversion{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.byID[conversionID]
	if !ok || conv.UserID != userID {
		return Conversion{}, ErrNotFound
	}
	return conv, nil
}

func (r *MemoryRepo) update(ctx context.Context, conversionID string, fn func(*Conversion)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[conversionID]
	if !ok {
		return ErrNotFound
	}
	fn(&conv)
	conv.UpdatedAt = time.Now().UTC()
	r.byID[conversionID] = conv
	return nil
}

// SetProcessing marks the conversion processing at the given stage.
func (r *MemoryRepo) SetProcessing(ctx context.Context, conversionID string, stage string, startedAt time.Time) error {
	return r.update(ctx, conversionID, func(conv *Conversion) {
		conv.Status = StatusProcessing
		conv.Stage = stage
		conv.StartedAt = &startedAt
	})
}

// SetStage records the pipeline stage currently running.
func (r *MemoryRepo) SetStage(ctx context.Context, conversionID string, stage string) error {
	return r.update(ctx, conversionID, func(conv *Conversion) {
		conv.Stage = stage
	})
}

// SetRewritten stores the rewrite-stage output and its fabrication warnings.
func (r *MemoryRepo) SetRewritten(ctx context.Context, conversionID string, rewrittenText string, warnings []string) error {
	return r.update(ctx, conversionID, func(conv *Conversion) {
		conv.RewrittenText = rewrittenText
		conv.Warnings = warnings
	})
}

// SetCompleted stores the final structured CV and marks the conversion done.
func (r *MemoryRepo) SetCompleted(ctx context.Context, conversionID string, cv cvmodel.StructuredCV, rawExtraction string, completedAt time.Time) error {
	return r.update(ctx, conversionID, func(conv *Conversion) {
		conv.Status = StatusCompleted
		conv.Stage = ""
		conv.StructuredCV = &cv
		conv.RawExtraction = rawExtraction
		conv.ErrorCode = ""
		conv.ErrorMessage = ""
		conv.ErrorStage = ""
		conv.CompletedAt = &completedAt
	})
}

// SetFailed records a classified failure.
func (r *MemoryRepo) SetFailed(ctx context.Context, conversionID string, errorCode, errorMessage, errorStage, rawExtraction string, completedAt time.Time) error {
	return r.update(ctx, conversionID, func(conv *Conversion) {
		conv.Status = StatusFailed
		conv.ErrorCode = errorCode
		conv.ErrorMessage = errorMessage
		conv.ErrorStage = errorStage
		conv.RawExtraction = rawExtraction
		conv.CompletedAt = &completedAt
	})
}

// UpdateCV replaces the structured CV after a successful re-validation.
func (r *MemoryRepo) UpdateCV(ctx context.Context, userID string, conversionID string, cv cvmodel.StructuredCV) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[conversionID]
	if !ok || conv.UserID != userID {
		return ErrNotFound
	}
	conv.StructuredCV = &cv
	conv.UpdatedAt = time.Now().UTC()
	r.byID[conversionID] = conv
	return nil
}

// Requeue resets a failed conversion back to queued.
func (r *MemoryRepo) Requeue(ctx context.Context, userID string, conversionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[conversionID]
	if !ok || conv.UserID != userID {
		return ErrNotFound
	}
	if conv.Status != StatusFailed {
		return ErrNotRetryable
	}
	conv.Status = StatusQueued
	conv.Stage = ""
	conv.RewrittenText = ""
	conv.StructuredCV = nil
	conv.RawExtraction = ""
	conv.Warnings = nil
	conv.ErrorCode = ""
	conv.ErrorMessage = ""
	conv.ErrorStage = ""
	conv.StartedAt = nil
	conv.CompletedAt = nil
	conv.UpdatedAt = time.Now().UTC()
	r.byID[conversionID] = conv
	return nil
}

// DeleteByUser removes every conversion owned by the user.
func (r *MemoryRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, conv := range r.byID {
		if conv.UserID == userID {
			delete(r.byID, id)
			removed++
		}
	}
	return removed, nil
}

var _ Repo = (*MemoryRepo)(nil)
