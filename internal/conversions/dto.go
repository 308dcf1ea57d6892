package conversions

import (
	"time"

	cvmodel "swisscv-backend/cv/model"
)

type conversionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stage   string `json:"stage,omitempty"`
	Raw     string `json:"raw,omitempty"`
}

// conversionResponse is the poll payload. Outputs appear as the
// pipeline produces them; the error block carries the raw provider
// response for diagnosis.
type conversionResponse struct {
	ConversionID        string                `json:"conversionId"`
	Status              string                `json:"status"`
	Stage               string                `json:"stage,omitempty"`
	Language            string                `json:"language"`
	Tone                string                `json:"tone"`
	SchemaVersion       string                `json:"schemaVersion"`
	DocumentIDs         []string              `json:"documentIds,omitempty"`
	RewrittenText       string                `json:"rewrittenText,omitempty"`
	StructuredCV        *cvmodel.StructuredCV `json:"structuredCv,omitempty"`
	FabricationWarnings []string              `json:"fabricationWarnings,omitempty"`
	Error               *conversionError      `json:"error,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	CompletedAt         *time.Time            `json:"completedAt,omitempty"`
}

func toResponse(conv Conversion) conversionResponse {
	resp := conversionResponse{
		ConversionID:        conv.ID,
		Status:              conv.Status,
		Stage:               conv.Stage,
		Language:            conv.Language,
		Tone:                conv.Tone,
		SchemaVersion:       conv.SchemaVersion,
		DocumentIDs:         conv.DocumentIDs,
		RewrittenText:       conv.RewrittenText,
		StructuredCV:        conv.StructuredCV,
		FabricationWarnings: conv.Warnings,
		CreatedAt:           conv.CreatedAt,
		CompletedAt:         conv.CompletedAt,
	}
	if conv.Status == StatusFailed && conv.ErrorCode != "" {
		resp.Error = &conversionError{
			Code:    conv.ErrorCode,
			Message: conv.ErrorMessage,
			Stage:   conv.ErrorStage,
			Raw:     conv.RawExtraction,
		}
	}
	return resp
}
