package conversions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"swisscv-backend/internal/llm"
)

const validExtractionJSON = `{
  "personalInfo": {"name": "Jane Doe", "jobTitle": "Software Engineer", "phone": "+41 79 000 00 00", "email": "jane@example.ch", "city": "Zurich", "postalCode": "8001", "country": "Switzerland", "linkedin": ""},
  "summaryParagraphs": ["Senior engineer with a delivery focus.", "Based in Zurich."],
  "workExperience": [{"jobTitle": "Software Engineer", "employer": "Acme", "fromDate": "2019", "toDate": "2021", "responsibility": "Platform work", "achievements": ["Led a team of 5"]}],
  "education": [{"degree": "BSc Computer Science", "graduationYear": "2018", "institution": "ETH Zurich", "institutionLocation": "Zurich", "institutionCountry": "Switzerland"}],
  "skills": ["Go", "SQL"],
  "languages": [{"language": "English", "level": "C2"}],
  "hobbies": ["Hiking"]
}`

// scriptedPromptClient returns canned responses in order and records
// every prompt it was sent.
type scriptedPromptClient struct {
	responses []string
	errs      []error
	prompts   []string
	jsonMode  []bool
}

func (c *scriptedPromptClient) Complete(ctx context.Context, prompt string) (string, error) {
	idx := len(c.prompts)
	c.prompts = append(c.prompts, prompt)
	c.jsonMode = append(c.jsonMode, llm.JSONResponseFromContext(ctx))
	if idx < len(c.errs) && c.errs[idx] != nil {
		return "", c.errs[idx]
	}
	if idx < len(c.responses) {
		return c.responses[idx], nil
	}
	return "", errors.New("no scripted response")
}

func TestExtractStructuredParsesWellFormedResponse(t *testing.T) {
	client := &scriptedPromptClient{responses: []string{validExtractionJSON}}

	cv, raw, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten cv text")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected a single call, got %d", len(client.prompts))
	}
	if !client.jsonMode[0] {
		t.Fatalf("expected json response mode on the extraction call")
	}
	if raw != validExtractionJSON {
		t.Fatalf("expected raw response returned for diagnostics")
	}

	if cv.PersonalInfo.Name != "Jane Doe" {
		t.Fatalf("name = %q", cv.PersonalInfo.Name)
	}
	if len(cv.WorkExperience) != 1 || cv.WorkExperience[0].Employer != "Acme" {
		t.Fatalf("work experience mismatch: %+v", cv.WorkExperience)
	}
	if cv.WorkExperience[0].FromDate != "2019" || cv.WorkExperience[0].ToDate != "2021" {
		t.Fatalf("dates mismatch: %+v", cv.WorkExperience[0])
	}
	if len(cv.Skills) != 2 || cv.Skills[0] != "Go" {
		t.Fatalf("skills mismatch: %v", cv.Skills)
	}
}

func TestExtractStructuredStripsResponseEnvelope(t *testing.T) {
	fenced := "Here is the CV:\n```json\n" + strings.Replace(validExtractionJSON, `"Hiking"]`, `"Hiking",]`, 1) + "\n```"
	client := &scriptedPromptClient{responses: []string{fenced}}

	cv, _, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected envelope cleanup to avoid the corrective call, got %d calls", len(client.prompts))
	}
	if cv.PersonalInfo.Name != "Jane Doe" {
		t.Fatalf("name = %q", cv.PersonalInfo.Name)
	}
}

func TestExtractStructuredCorrectiveRetryFixesResponse(t *testing.T) {
	missingName := strings.Replace(validExtractionJSON, `"name": "Jane Doe"`, `"name": ""`, 1)
	client := &scriptedPromptClient{responses: []string{missingName, validExtractionJSON}}

	cv, raw, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected exactly one corrective call, got %d total", len(client.prompts))
	}
	if cv.PersonalInfo.Name != "Jane Doe" {
		t.Fatalf("name = %q", cv.PersonalInfo.Name)
	}
	if raw != validExtractionJSON {
		t.Fatalf("expected raw of the successful attempt")
	}

	corrective := client.prompts[1]
	if !strings.Contains(corrective, "personalInfo.name is required") {
		t.Fatalf("corrective prompt should name the validation error:\n%s", corrective)
	}
	if !strings.Contains(corrective, missingName) {
		t.Fatalf("corrective prompt should quote the prior response")
	}
}

func TestExtractStructuredOverCapTriggersRetry(t *testing.T) {
	tooManySkills := strings.Replace(validExtractionJSON, `"skills": ["Go", "SQL"]`,
		`"skills": ["a", "b", "c", "d", "e", "f", "g"]`, 1)
	client := &scriptedPromptClient{responses: []string{tooManySkills, validExtractionJSON}}

	cv, _, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected over-cap response to be rejected, not truncated; calls=%d", len(client.prompts))
	}
	if !strings.Contains(client.prompts[1], "skills must contain at most 6 entries") {
		t.Fatalf("corrective prompt should carry the cap violation:\n%s", client.prompts[1])
	}
	if len(cv.Skills) != 2 {
		t.Fatalf("expected the corrected skills list, got %v", cv.Skills)
	}
}

func TestExtractStructuredSchemaMismatchAfterRetry(t *testing.T) {
	client := &scriptedPromptClient{responses: []string{"not json at all", "still { not json"}}

	_, raw, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten")
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected exactly two attempts, got %d", len(client.prompts))
	}
	if raw != "still { not json" {
		t.Fatalf("expected the last raw response retained, got %q", raw)
	}
}

func TestExtractStructuredTransportError(t *testing.T) {
	client := &scriptedPromptClient{errs: []error{errors.New("connection reset")}}

	_, raw, err := ExtractStructuredWithRetry(context.Background(), client, llm.LanguageEnglish, "rewritten")
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected transport error surfaced, got %v", err)
	}
	if errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("transport failures must not classify as schema mismatch")
	}
	if raw != "" {
		t.Fatalf("no raw response expected, got %q", raw)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("transport errors must not trigger the corrective call, got %d calls", len(client.prompts))
	}
}

func TestExtractStructuredRejectionLogsRequestContext(t *testing.T) {
	missingName := strings.Replace(validExtractionJSON, `"name": "Jane Doe"`, `"name": ""`, 1)
	client := &scriptedPromptClient{responses: []string{missingName, validExtractionJSON}}

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = origStdout
	}()

	ctx := WithRequestID(context.Background(), "req-42")
	if _, _, err := ExtractStructuredWithRetry(ctx, client, llm.LanguageEnglish, "rewritten"); err != nil {
		t.Fatalf("extract: %v", err)
	}

	_ = w.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read log output: %v", err)
	}

	var rejection map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			continue
		}
		if payload["msg"] == "conversion.extraction_rejected" {
			rejection = payload
			break
		}
	}
	if rejection == nil {
		t.Fatalf("expected a structured rejection log line, got: %s", buf.String())
	}
	if rejection["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", rejection["level"])
	}
	if rejection["request_id"] != "req-42" {
		t.Fatalf("expected request id in rejection log, got %v", rejection["request_id"])
	}
	if rejection["attempt"] != float64(1) {
		t.Fatalf("expected attempt 1, got %v", rejection["attempt"])
	}
}
