package conversions_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	cvmodel "swisscv-backend/cv/model"
	"swisscv-backend/internal/conversions"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/llm"
	"swisscv-backend/internal/shared/storage/object/local"
)

type testEnv struct {
	router *gin.Engine
	repo   *conversions.MemoryRepo
	docs   *documents.Service
	svc    *conversions.Service
}

func newTestEnv(t *testing.T, client llm.PromptClient) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	docs := documents.NewService(local.New(t.TempDir()), documents.NewMemoryRepo())
	repo := conversions.NewMemoryRepo()
	svc := &conversions.Service{
		Repo:        repo,
		Docs:        docs,
		LLM:         client,
		TemplateDir: writeMinimalTemplateDir(t),
		Timeout:     time.Second,
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("userId", "user-1")
		c.Next()
	})
	conversions.NewHandler(svc).RegisterRoutes(api)

	return &testEnv{router: router, repo: repo, docs: docs, svc: svc}
}

func writeMinimalTemplateDir(t *testing.T) string {
	t.Helper()

	const documentXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>{{NAME}}</w:t></w:r></w:p><w:p><w:r><w:t>{{JOB_TITLE}}</w:t></w:r></w:p></w:body></w:document>`
	const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`

	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, entry := range []struct{ name, content string }{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", relsXML},
		{"word/document.xml", documentXML},
	} {
		dst, err := writer.Create(entry.name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := dst.Write([]byte(entry.content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cv_swiss_en.docx"), buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	return dir
}

func sampleCV() cvmodel.StructuredCV {
	return cvmodel.StructuredCV{
		PersonalInfo: cvmodel.PersonalInfo{
			Name:     "Jane Doe",
			JobTitle: "Software Engineer",
		},
		SummaryParagraphs: []string{"Engineer with production focus.", "Leads small teams."},
		WorkExperience: []cvmodel.WorkExperience{
			{JobTitle: "Software Engineer", Employer: "Acme", FromDate: "2019", ToDate: "2021"},
		},
		Education: []cvmodel.Education{},
		Skills:    []string{"Go"},
	}
}

func seedConversion(t *testing.T, repo *conversions.MemoryRepo, id string) conversions.Conversion {
	t.Helper()
	now := time.Now().UTC()
	conv := conversions.Conversion{
		ID:               id,
		UserID:           "user-1",
		Language:         "english",
		Tone:             "general",
		SchemaVersion:    cvmodel.SchemaVersion,
		Status:           conversions.StatusQueued,
		ConsolidatedText: "[ORIGINAL_CV]\ncv text",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.Create(context.Background(), conv); err != nil {
		t.Fatalf("seed conversion: %v", err)
	}
	return conv
}

func seedCompleted(t *testing.T, repo *conversions.MemoryRepo, id string) conversions.Conversion {
	t.Helper()
	conv := seedConversion(t, repo, id)
	if err := repo.SetCompleted(context.Background(), conv.ID, sampleCV(), "{}", time.Now().UTC()); err != nil {
		t.Fatalf("seed completed: %v", err)
	}
	return conv
}

func seedFailed(t *testing.T, repo *conversions.MemoryRepo, id string) conversions.Conversion {
	t.Helper()
	conv := seedConversion(t, repo, id)
	if err := repo.SetFailed(context.Background(), conv.ID, conversions.ErrorCodeSchemaMismatch,
		"extraction response does not match the cv schema", conversions.StageExtract, "raw model output", time.Now().UTC()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return conv
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeErrorEnvelope(t *testing.T, body *bytes.Buffer) (string, string) {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code, envelope.Error.Message
}

func TestCreateConversionAccepted(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})

	if _, err := env.docs.Upload(context.Background(), "user-1", documents.KindCV, "cv.txt", "text/plain",
		strings.NewReader("Software Eng at Acme 2019-2021")); err != nil {
		t.Fatalf("seed document: %v", err)
	}

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions", gin.H{
		"language": "english",
		"tone":     "general",
	})
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", resp.Code, resp.Body.String())
	}

	var accepted struct {
		ConversionID string `json:"conversionId"`
		Status       string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.ConversionID == "" {
		t.Fatal("expected conversionId")
	}
	if accepted.Status != conversions.StatusQueued {
		t.Fatalf("status = %q, want queued", accepted.Status)
	}
}

func TestCreateConversionEmptyInput(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions", gin.H{"language": "english"})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", resp.Code, resp.Body.String())
	}
	if code, _ := decodeErrorEnvelope(t, resp.Body); code != conversions.ErrorCodeEmptyInput {
		t.Fatalf("expected EMPTY_INPUT, got %s", code)
	}
}

func TestCreateConversionUnknownLanguage(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions", gin.H{
		"notes":    "some text",
		"language": "klingon",
	})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", resp.Code, resp.Body.String())
	}
	code, message := decodeErrorEnvelope(t, resp.Body)
	if code != conversions.ErrorCodeValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %s", code)
	}
	if !strings.Contains(message, "language") {
		t.Fatalf("message should name the language, got %q", message)
	}
}

func TestCreateConversionUnknownDocument(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions", gin.H{
		"documentIds": []string{"missing"},
		"language":    "english",
	})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestGetConversionPollLimited(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedConversion(t, env.repo, "conv-poll")

	first := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID, nil)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", first.Code, first.Body.String())
	}

	second := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID, nil)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on immediate re-poll, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After: 1, got %q", second.Header().Get("Retry-After"))
	}
	if code, _ := decodeErrorEnvelope(t, second.Body); code != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED, got %s", code)
	}
}

func TestGetConversionNotFound(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})

	resp := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/missing", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", resp.Code, resp.Body.String())
	}
	if code, _ := decodeErrorEnvelope(t, resp.Body); code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %s", code)
	}
}

func TestGetConversionFailedCarriesErrorEnvelope(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedFailed(t, env.repo, "conv-failed")

	resp := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Status string `json:"status"`
		Error  *struct {
			Code  string `json:"code"`
			Stage string `json:"stage"`
			Raw   string `json:"raw"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != conversions.StatusFailed {
		t.Fatalf("status = %q", payload.Status)
	}
	if payload.Error == nil || payload.Error.Code != conversions.ErrorCodeSchemaMismatch {
		t.Fatalf("expected SCHEMA_MISMATCH error block, got %+v", payload.Error)
	}
	if payload.Error.Stage != conversions.StageExtract {
		t.Fatalf("error stage = %q", payload.Error.Stage)
	}
	if payload.Error.Raw != "raw model output" {
		t.Fatalf("expected raw response for diagnosis, got %q", payload.Error.Raw)
	}
}

func TestReviewCVEndpoints(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedCompleted(t, env.repo, "conv-review")

	got := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID+"/cv", nil)
	if got.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", got.Code, got.Body.String())
	}
	var cv cvmodel.StructuredCV
	if err := json.NewDecoder(got.Body).Decode(&cv); err != nil {
		t.Fatalf("decode cv: %v", err)
	}
	if cv.PersonalInfo.Name != "Jane Doe" {
		t.Fatalf("name = %q", cv.PersonalInfo.Name)
	}

	invalid := sampleCV()
	invalid.WorkExperience[0].Employer = ""
	put := doJSON(t, env.router, http.MethodPut, "/api/v1/conversions/"+conv.ID+"/cv", invalid)
	if put.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", put.Code, put.Body.String())
	}
	code, message := decodeErrorEnvelope(t, put.Body)
	if code != conversions.ErrorCodeValidationFailed {
		t.Fatalf("expected VALIDATION_FAILED, got %s", code)
	}
	if !strings.Contains(message, "workExperience[0].employer") {
		t.Fatalf("message should name the offending field, got %q", message)
	}

	valid := sampleCV()
	valid.PersonalInfo.Name = "  Jane A. Doe  "
	put = doJSON(t, env.router, http.MethodPut, "/api/v1/conversions/"+conv.ID+"/cv", valid)
	if put.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", put.Code, put.Body.String())
	}
	var updated cvmodel.StructuredCV
	if err := json.NewDecoder(put.Body).Decode(&updated); err != nil {
		t.Fatalf("decode updated cv: %v", err)
	}
	if updated.PersonalInfo.Name != "Jane A. Doe" {
		t.Fatalf("expected sanitized name, got %q", updated.PersonalInfo.Name)
	}
}

func TestGetCVBeforeCompletion(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedConversion(t, env.repo, "conv-pending")

	resp := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID+"/cv", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before completion, got %d", resp.Code)
	}
}

func TestRetryEndpoint(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedFailed(t, env.repo, "conv-retry")

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions/"+conv.ID+"/retry", nil)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d body=%s", resp.Code, resp.Body.String())
	}
	var accepted struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if accepted.Status != conversions.StatusQueued {
		t.Fatalf("status = %q, want queued", accepted.Status)
	}
}

func TestRetryEndpointRejectsNonFailed(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedCompleted(t, env.repo, "conv-done")

	resp := doJSON(t, env.router, http.MethodPost, "/api/v1/conversions/"+conv.ID+"/retry", nil)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestDownloadConversion(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedCompleted(t, env.repo, "conv-download")

	resp := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID+"/download", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}

	disposition := resp.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "CV_Jane_Doe.docx") {
		t.Fatalf("unexpected Content-Disposition %q", disposition)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "officedocument.wordprocessingml.document") {
		t.Fatalf("unexpected Content-Type %q", ct)
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip payload")
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	env := newTestEnv(t, llm.PlaceholderClient{})
	conv := seedConversion(t, env.repo, "conv-early")

	resp := doJSON(t, env.router, http.MethodGet, "/api/v1/conversions/"+conv.ID+"/download", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before completion, got %d", resp.Code)
	}
}
