package conversions

import (
	"time"

	cvmodel "swisscv-backend/cv/model"
)

// Conversion lifecycle statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Pipeline stages, recorded while running and on failure.
const (
	StageRewrite = "rewrite"
	StageExtract = "extract"
	StageRender  = "render"
)

// Conversion is one run of the rewrite pipeline for a session. The
// consolidated text is kept so a failed run can be retried without
// re-uploading; the raw extraction response is kept for diagnostics.
type Conversion struct {
	ID               string
	UserID           string
	DocumentIDs      []string
	Notes            string
	Language         string
	Tone             string
	SchemaVersion    string
	Status           string
	Stage            string
	ConsolidatedText string
	RewrittenText    string
	StructuredCV     *cvmodel.StructuredCV
	RawExtraction    string
	Warnings         []string
	ErrorCode        string
	ErrorMessage     string
	ErrorStage       string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}
