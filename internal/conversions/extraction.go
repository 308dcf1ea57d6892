package conversions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	cvmodel "swisscv-backend/cv/model"
	"swisscv-backend/internal/llm"
	"swisscv-backend/internal/shared/telemetry"
)

// ExtractStructuredWithRetry runs the extraction stage: one structured
// call and, on a parse or validation failure, exactly one corrective
// re-prompt that names the failure and quotes the prior response. The
// raw response of the last attempt is returned in every outcome so it
// can be stored for diagnostics. A partial CV is never returned.
func ExtractStructuredWithRetry(ctx context.Context, client llm.PromptClient, language llm.Language, rewrittenText string) (cvmodel.StructuredCV, string, error) {
	ctx = llm.WithJSONResponse(ctx)

	raw, err := client.Complete(ctx, llm.BuildExtractionPrompt(language, rewrittenText))
	if err != nil {
		return cvmodel.StructuredCV{}, "", fmt.Errorf("extraction call: %w", err)
	}

	cv, parseErr := parseStructuredCV(raw)
	if parseErr == nil {
		return cv, raw, nil
	}
	telemetry.Warn("conversion.extraction_rejected", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"attempt":    1,
		"error":      parseErr.Error(),
	})

	rawRetry, err := client.Complete(ctx, llm.BuildCorrectivePrompt(language, rewrittenText, parseErr.Error(), raw))
	if err != nil {
		return cvmodel.StructuredCV{}, raw, fmt.Errorf("extraction corrective call: %w", err)
	}

	cv, parseErr = parseStructuredCV(rawRetry)
	if parseErr != nil {
		telemetry.Warn("conversion.extraction_rejected", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"attempt":    2,
			"error":      parseErr.Error(),
		})
		return cvmodel.StructuredCV{}, rawRetry, fmt.Errorf("%w: %v", ErrSchemaMismatch, parseErr)
	}
	return cv, rawRetry, nil
}

// parseStructuredCV decodes one extraction response: envelope cleanup,
// unmarshal into the typed schema, sanitize, then full validation.
func parseStructuredCV(raw string) (cvmodel.StructuredCV, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return cvmodel.StructuredCV{}, err
	}

	var cv cvmodel.StructuredCV
	if err := json.Unmarshal([]byte(payload), &cv); err != nil {
		return cvmodel.StructuredCV{}, fmt.Errorf("decode cv json: %w", err)
	}

	cv.Sanitize()
	if err := cv.Validate(); err != nil {
		return cvmodel.StructuredCV{}, err
	}
	return cv, nil
}

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// extractJSONObject pulls the JSON object out of an LLM response that
// may carry code fences, surrounding prose, or trailing commas.
func extractJSONObject(raw string) (string, error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return "", errors.New("empty llm response")
	}

	payload = stripCodeFences(payload)
	if json.Valid([]byte(payload)) {
		return payload, nil
	}

	start := strings.Index(payload, "{")
	end := strings.LastIndex(payload, "}")
	if start == -1 || end == -1 || end <= start {
		return "", errors.New("no json object found")
	}

	candidate := payload[start : end+1]
	if json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	candidate = trailingCommaPattern.ReplaceAllString(candidate, "$1")
	if !json.Valid([]byte(candidate)) {
		return "", errors.New("invalid json object")
	}
	return candidate, nil
}

func stripCodeFences(payload string) string {
	if !strings.HasPrefix(payload, "```") {
		return payload
	}
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(strings.TrimSpace(payload), "```")
	return strings.TrimSpace(payload)
}
