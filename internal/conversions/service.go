package conversions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	cvmodel "swisscv-backend/cv/model"
	"swisscv-backend/cv/render"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/llm"
	"swisscv-backend/internal/shared/metrics"
	"swisscv-backend/internal/shared/telemetry"
)

// Service runs the rewrite pipeline: inline consolidation at create
// time, then the rewrite and extraction stages in a background
// goroutine while the conversion stays pollable.
type Service struct {
	Repo        Repo
	Docs        *documents.Service
	LLM         llm.PromptClient
	Provider    string
	Model       string
	TemplateDir string
	Timeout     time.Duration
}

// CreateInput carries the conversion request. An empty DocumentIDs
// selects every document of the session in upload order.
type CreateInput struct {
	DocumentIDs []string
	Notes       string
	Language    string
	Tone        string
}

// Create consolidates the selected documents and notes, persists the
// queued conversion, and kicks off asynchronous completion.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (Conversion, error) {
	if userID == "" {
		return Conversion{}, errors.New("userID is required")
	}
	language, err := llm.ParseLanguage(in.Language)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	tone, err := llm.ParseTone(in.Tone)
	if err != nil {
		return Conversion{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	docs, err := s.selectDocuments(ctx, userID, in.DocumentIDs)
	if err != nil {
		return Conversion{}, err
	}

	blocks := make([]Block, 0, len(docs))
	documentIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		text, err := s.Docs.Text(ctx, doc)
		if err != nil {
			return Conversion{}, fmt.Errorf("document %s text: %w", doc.ID, err)
		}
		blocks = append(blocks, Block{Kind: doc.Kind, Text: text})
		documentIDs = append(documentIDs, doc.ID)
	}

	consolidated, err := Consolidate(blocks, in.Notes)
	if err != nil {
		return Conversion{}, err
	}

	now := time.Now().UTC()
	conv := Conversion{
		ID:               uuid.NewString(),
		UserID:           userID,
		DocumentIDs:      documentIDs,
		Notes:            strings.TrimSpace(in.Notes),
		Language:         string(language),
		Tone:             string(tone),
		SchemaVersion:    cvmodel.SchemaVersion,
		Status:           StatusQueued,
		ConsolidatedText: consolidated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Repo.Create(ctx, conv); err != nil {
		return Conversion{}, err
	}

	go s.completeAsync(backgroundWithRequestID(ctx), conv.UserID, conv.ID)

	return conv, nil
}

// selectDocuments resolves the requested document IDs, or all of the
// session's documents oldest-first when none were named.
func (s *Service) selectDocuments(ctx context.Context, userID string, ids []string) ([]documents.Document, error) {
	if len(ids) > 0 {
		docs := make([]documents.Document, 0, len(ids))
		for _, id := range ids {
			doc, err := s.Docs.Get(ctx, userID, id)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	docs, err := s.Docs.List(ctx, userID, 100, 0)
	if err != nil {
		return nil, err
	}
	// List returns newest-first; consolidation wants upload order.
	for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
		docs[i], docs[j] = docs[j], docs[i]
	}
	return docs, nil
}

// Get returns a conversion owned by the user.
func (s *Service) Get(ctx context.Context, userID string, conversionID string) (Conversion, error) {
	if conversionID == "" {
		return Conversion{}, errors.New("conversionID is required")
	}
	return s.Repo.GetByID(ctx, userID, conversionID)
}

// Retry re-runs a failed conversion from its preserved consolidated
// text. The conversion goes back to queued with its outputs cleared.
func (s *Service) Retry(ctx context.Context, userID string, conversionID string) (Conversion, error) {
	if _, err := s.Repo.GetByID(ctx, userID, conversionID); err != nil {
		return Conversion{}, err
	}
	if err := s.Repo.Requeue(ctx, userID, conversionID); err != nil {
		return Conversion{}, err
	}
	conv, err := s.Repo.GetByID(ctx, userID, conversionID)
	if err != nil {
		return Conversion{}, err
	}

	go s.completeAsync(backgroundWithRequestID(ctx), conv.UserID, conv.ID)

	return conv, nil
}

// GetCV returns the structured CV of a completed conversion for the
// review form.
func (s *Service) GetCV(ctx context.Context, userID string, conversionID string) (cvmodel.StructuredCV, error) {
	conv, err := s.Repo.GetByID(ctx, userID, conversionID)
	if err != nil {
		return cvmodel.StructuredCV{}, err
	}
	if conv.StructuredCV == nil {
		return cvmodel.StructuredCV{}, ErrNoCV
	}
	return *conv.StructuredCV, nil
}

// UpdateCV re-validates an edited CV and stores it. The returned copy
// is the sanitized record the review form should show next.
func (s *Service) UpdateCV(ctx context.Context, userID string, conversionID string, cv cvmodel.StructuredCV) (cvmodel.StructuredCV, error) {
	cv.Sanitize()
	if err := cv.Validate(); err != nil {
		return cvmodel.StructuredCV{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.Repo.UpdateCV(ctx, userID, conversionID, cv); err != nil {
		return cvmodel.StructuredCV{}, err
	}
	return cv, nil
}

// Render fills the language-specific DOCX template with the
// conversion's structured CV and returns the bytes plus download name.
func (s *Service) Render(ctx context.Context, userID string, conversionID string) ([]byte, string, error) {
	conv, err := s.Repo.GetByID(ctx, userID, conversionID)
	if err != nil {
		return nil, "", err
	}
	if conv.StructuredCV == nil {
		return nil, "", ErrNoCV
	}

	data, err := render.RenderCV(render.TemplatePath(s.TemplateDir, conv.Language), *conv.StructuredCV)
	if err != nil {
		return nil, "", err
	}
	return data, render.OutputFileName(conv.StructuredCV.PersonalInfo.Name), nil
}

// DeleteByUser removes every conversion of the user, for session
// teardown.
func (s *Service) DeleteByUser(ctx context.Context, userID string) (int, error) {
	return s.Repo.DeleteByUser(ctx, userID)
}

// timeoutClient bounds each provider call. The two pipeline calls are
// the only blocking operations; there is no cancellation beyond this.
type timeoutClient struct {
	inner   llm.PromptClient
	timeout time.Duration
}

func (c timeoutClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout <= 0 {
		return c.inner.Complete(ctx, prompt)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.inner.Complete(ctx, prompt)
}

func (s *Service) promptClient() llm.PromptClient {
	return timeoutClient{inner: s.LLM, timeout: s.Timeout}
}

func (s *Service) completeAsync(ctx context.Context, userID, conversionID string) {
	defer func() {
		if r := recover(); r != nil {
			s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("panic: %v", r), "", nil)
		}
	}()
	startedAt := time.Now().UTC()
	if err := s.Repo.SetProcessing(ctx, conversionID, StageRewrite, startedAt); err != nil {
		s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("set processing failed: %w", err), "", &startedAt)
		return
	}

	conv, err := s.Repo.GetByID(ctx, userID, conversionID)
	if err != nil {
		s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("conversion lookup: %w", err), "", &startedAt)
		return
	}
	metrics.IncConversionStarted()
	telemetry.Info("conversion.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"conversion_id":     conversionID,
		"status":            StatusProcessing,
		"status_transition": "queued->processing",
	})
	if s.LLM == nil {
		s.fail(ctx, userID, conversionID, StageRewrite, errors.New("missing llm client"), "", &startedAt)
		return
	}
	client := s.promptClient()
	language := llm.Language(conv.Language)
	tone := llm.Tone(conv.Tone)

	rewritten, err := client.Complete(ctx, llm.BuildRewritePrompt(language, tone, conv.ConsolidatedText))
	if err != nil {
		s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("%w: %v", ErrRewriteFailed, err), "", &startedAt)
		return
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("%w: provider returned an empty response", ErrRewriteFailed), "", &startedAt)
		return
	}

	warnings := FabricationWarnings(conv.ConsolidatedText, rewritten)
	if err := s.Repo.SetRewritten(ctx, conversionID, rewritten, warnings); err != nil {
		s.fail(ctx, userID, conversionID, StageRewrite, fmt.Errorf("store rewritten text failed: %w", err), "", &startedAt)
		return
	}
	if err := s.Repo.SetStage(ctx, conversionID, StageExtract); err != nil {
		s.fail(ctx, userID, conversionID, StageExtract, fmt.Errorf("set stage failed: %w", err), "", &startedAt)
		return
	}

	cv, raw, err := ExtractStructuredWithRetry(ctx, client, language, rewritten)
	if err != nil {
		s.fail(ctx, userID, conversionID, StageExtract, err, raw, &startedAt)
		return
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.SetCompleted(ctx, conversionID, cv, raw, completedAt); err != nil {
		s.fail(ctx, userID, conversionID, StageExtract, fmt.Errorf("store structured cv failed: %w", err), raw, &startedAt)
		return
	}
	metrics.IncConversionCompleted()
	metrics.ObserveConversionDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("conversion.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"conversion_id":     conversionID,
		"status":            StatusCompleted,
		"status_transition": "processing->completed",
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
}

func (s *Service) fail(ctx context.Context, userID, conversionID, stage string, err error, rawExtraction string, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.SetFailed(context.Background(), conversionID, code, msg, stage, rawExtraction, completedAt); updateErr != nil {
		telemetry.Error("conversion.fail_update", map[string]any{
			"conversion_id": conversionID,
			"error":         updateErr.Error(),
			"orig_error":    sanitizeError(err),
		})
	}
	metrics.IncConversionFailed()
	if startedAt != nil {
		metrics.ObserveConversionDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("conversion.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"user_id":           userID,
		"conversion_id":     conversionID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"error_stage":       stage,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

// classifyFailure maps a pipeline error to its user-visible code.
// Transport problems on either provider call (timeout, rate limit,
// network) carry the rewrite-failed code; the stage field records
// where they happened.
func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	switch {
	case errors.Is(err, ErrSchemaMismatch):
		return ErrorCodeSchemaMismatch
	case errors.Is(err, ErrRewriteFailed):
		return ErrorCodeRewriteFailed
	case errors.Is(err, ErrValidation):
		return ErrorCodeValidationFailed
	case errors.Is(err, ErrEmptyInput):
		return ErrorCodeEmptyInput
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeRewriteFailed
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "rate limit") {
		return ErrorCodeRewriteFailed
	}
	if strings.Contains(msg, "extraction call") || strings.Contains(msg, "corrective call") {
		return ErrorCodeRewriteFailed
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
