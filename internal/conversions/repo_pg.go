package conversions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	cvmodel "swisscv-backend/cv/model"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const conversionColumns = `id, user_id, document_ids, notes, language, tone, schema_version,
       status, stage, consolidated_text, rewritten_text, structured_cv, raw_extraction, warnings,
       error_code, error_message, error_stage, created_at, updated_at, started_at, completed_at`

// Create inserts a new conversion.
func (r *PGRepo) Create(ctx context.Context, conv Conversion) error {
	const query = `
INSERT INTO conversions (` + conversionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	documentIDs, err := json.Marshal(stringsOrEmpty(conv.DocumentIDs))
	if err != nil {
		return fmt.Errorf("marshal document ids: %w", err)
	}
	structuredCV, err := marshalCV(conv.StructuredCV)
	if err != nil {
		return err
	}
	warnings, err := marshalWarnings(conv.Warnings)
	if err != nil {
		return err
	}

	_, err = r.DB.ExecContext(ctx, query,
		conv.ID,
		conv.UserID,
		documentIDs,
		conv.Notes,
		conv.Language,
		conv.Tone,
		conv.SchemaVersion,
		conv.Status,
		conv.Stage,
		conv.ConsolidatedText,
		conv.RewrittenText,
		structuredCV,
		conv.RawExtraction,
		warnings,
		nullString(conv.ErrorCode),
		nullString(conv.ErrorMessage),
		nullString(conv.ErrorStage),
		conv.CreatedAt,
		conv.UpdatedAt,
		conv.StartedAt,
		conv.CompletedAt,
	)
	return err
}

// GetByID returns a conversion owned by the user.
func (r *PGRepo) GetByID(ctx context.Context, userID string, conversionID string) (Conversion, error) {
	const query = `
SELECT ` + conversionColumns + `
FROM conversions
WHERE user_id = $1 AND id = $2
LIMIT 1`

	conv, err := scanConversion(r.DB.QueryRowContext(ctx, query, userID, conversionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversion{}, ErrNotFound
		}
		return Conversion{}, err
	}
	return conv, nil
}

// SetProcessing marks the conversion processing at the given stage.
func (r *PGRepo) SetProcessing(ctx context.Context, conversionID string, stage string, startedAt time.Time) error {
	const query = `
UPDATE conversions
SET status = $1, stage = $2, started_at = $3, updated_at = now()
WHERE id = $4`
	return r.exec(ctx, query, StatusProcessing, stage, startedAt, conversionID)
}

// SetStage records the pipeline stage currently running.
func (r *PGRepo) SetStage(ctx context.Context, conversionID string, stage string) error {
	const query = `
UPDATE conversions
SET stage = $1, updated_at = now()
WHERE id = $2`
	return r.exec(ctx, query, stage, conversionID)
}

// SetRewritten stores the rewrite-stage output and its fabrication warnings.
func (r *PGRepo) SetRewritten(ctx context.Context, conversionID string, rewrittenText string, warnings []string) error {
	const query = `
UPDATE conversions
SET rewritten_text = $1, warnings = $2, updated_at = now()
WHERE id = $3`
	payload, err := marshalWarnings(warnings)
	if err != nil {
		return err
	}
	return r.exec(ctx, query, rewrittenText, payload, conversionID)
}

// SetCompleted stores the final structured CV and marks the conversion done.
func (r *PGRepo) SetCompleted(ctx context.Context, conversionID string, cv cvmodel.StructuredCV, rawExtraction string, completedAt time.Time) error {
	const query = `
UPDATE conversions
SET status = $1, stage = '', structured_cv = $2, raw_extraction = $3,
    error_code = NULL, error_message = NULL, error_stage = NULL,
    completed_at = $4, updated_at = now()
WHERE id = $5`
	payload, err := marshalCV(&cv)
	if err != nil {
		return err
	}
	return r.exec(ctx, query, StatusCompleted, payload, rawExtraction, completedAt, conversionID)
}

// SetFailed records a classified failure.
func (r *PGRepo) SetFailed(ctx context.Context, conversionID string, errorCode, errorMessage, errorStage, rawExtraction string, completedAt time.Time) error {
	const query = `
UPDATE conversions
SET status = $1, error_code = $2, error_message = $3, error_stage = $4,
    raw_extraction = $5, completed_at = $6, updated_at = now()
WHERE id = $7`
	return r.exec(ctx, query, StatusFailed, errorCode, errorMessage, errorStage, rawExtraction, completedAt, conversionID)
}

// UpdateCV replaces the structured CV after a successful re-validation.
func (r *PGRepo) UpdateCV(ctx context.Context, userID string, conversionID string, cv cvmodel.StructuredCV) error {
	const query = `
UPDATE conversions
SET structured_cv = $1, updated_at = now()
WHERE user_id = $2 AND id = $3`
	payload, err := marshalCV(&cv)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, payload, userID, conversionID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Requeue resets a failed conversion back to queued.
func (r *PGRepo) Requeue(ctx context.Context, userID string, conversionID string) error {
	const query = `
UPDATE conversions
SET status = $1, stage = '', rewritten_text = '', structured_cv = NULL,
    raw_extraction = '', warnings = NULL,
    error_code = NULL, error_message = NULL, error_stage = NULL,
    started_at = NULL, completed_at = NULL, updated_at = now()
WHERE user_id = $2 AND id = $3 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, StatusQueued, userID, conversionID, StatusFailed)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotRetryable
	}
	return nil
}

// DeleteByUser removes every conversion owned by the user.
func (r *PGRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	const query = `DELETE FROM conversions WHERE user_id = $1`
	res, err := r.DB.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (Conversion, error) {
	var conv Conversion
	var documentIDs []byte
	var structuredCV []byte
	var warnings []byte
	var errorCode, errorMessage, errorStage sql.NullString
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&conv.ID,
		&conv.UserID,
		&documentIDs,
		&conv.Notes,
		&conv.Language,
		&conv.Tone,
		&conv.SchemaVersion,
		&conv.Status,
		&conv.Stage,
		&conv.ConsolidatedText,
		&conv.RewrittenText,
		&structuredCV,
		&conv.RawExtraction,
		&warnings,
		&errorCode,
		&errorMessage,
		&errorStage,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&startedAt,
		&completedAt,
	); err != nil {
		return Conversion{}, err
	}

	if len(documentIDs) > 0 {
		if err := json.Unmarshal(documentIDs, &conv.DocumentIDs); err != nil {
			return Conversion{}, fmt.Errorf("decode document ids: %w", err)
		}
	}
	if len(structuredCV) > 0 {
		var cv cvmodel.StructuredCV
		if err := json.Unmarshal(structuredCV, &cv); err != nil {
			return Conversion{}, fmt.Errorf("decode structured cv: %w", err)
		}
		conv.StructuredCV = &cv
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &conv.Warnings); err != nil {
			return Conversion{}, fmt.Errorf("decode warnings: %w", err)
		}
	}
	conv.ErrorCode = errorCode.String
	conv.ErrorMessage = errorMessage.String
	conv.ErrorStage = errorStage.String
	if startedAt.Valid {
		conv.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		conv.CompletedAt = &completedAt.Time
	}
	return conv, nil
}

func marshalCV(cv *cvmodel.StructuredCV) ([]byte, error) {
	if cv == nil {
		return nil, nil
	}
	payload, err := json.Marshal(cv)
	if err != nil {
		return nil, fmt.Errorf("marshal structured cv: %w", err)
	}
	return payload, nil
}

func marshalWarnings(warnings []string) ([]byte, error) {
	if warnings == nil {
		return nil, nil
	}
	payload, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("marshal warnings: %w", err)
	}
	return payload, nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)
