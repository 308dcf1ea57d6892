package sessions_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/sessions"
)

type noopPurger struct{}

func (noopPurger) RemoveAllForUser(ctx context.Context, userID string) (int, error) { return 0, nil }
func (noopPurger) DeleteByUser(ctx context.Context, userID string) (int, error)     { return 0, nil }

func newTestRouter(t *testing.T, password string) (*gin.Engine, *sessions.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &sessions.Service{
		Repo:           sessions.NewMemoryRepo(),
		Docs:           noopPurger{},
		Conversions:    noopPurger{},
		AccessPassword: password,
		TTL:            time.Hour,
	}
	handler := sessions.NewHandler(svc)

	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	return router, svc
}

func postSession(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = &bytes.Buffer{}
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestCreateSessionEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "")

	resp := postSession(t, router, `{"label":"my run"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resp.Code, resp.Body.String())
	}

	var created struct {
		SessionID string `json:"sessionId"`
		Label     string `json:"label"`
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" || created.Token == "" {
		t.Fatalf("expected session id and token, got %+v", created)
	}
	if created.Label != "my run" {
		t.Fatalf("label %q, want %q", created.Label, "my run")
	}
}

func TestCreateSessionWrongPassword(t *testing.T) {
	router, _ := newTestRouter(t, "letmein")

	resp := postSession(t, router, `{"password":"nope"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", resp.Code, resp.Body.String())
	}

	resp = postSession(t, router, "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for empty body, got %d", resp.Code)
	}

	resp = postSession(t, router, `{"password":"letmein"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 with correct password, got %d body=%s", resp.Code, resp.Body.String())
	}
}

func TestCurrentAndTeardownEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := &sessions.Service{
		Repo:        sessions.NewMemoryRepo(),
		Docs:        noopPurger{},
		Conversions: noopPurger{},
		TTL:         time.Hour,
	}
	session, _, err := svc.Create(context.Background(), sessions.CreateInput{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Set("userId", session.Principal)
		c.Set("sessionId", session.ID)
		c.Next()
	})
	sessions.NewHandler(svc).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/current", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("current: expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}
	var current struct {
		SessionID string `json:"sessionId"`
		Token     string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&current); err != nil {
		t.Fatalf("decode current: %v", err)
	}
	if current.SessionID != session.ID {
		t.Fatalf("current session %q, want %q", current.SessionID, session.ID)
	}
	if current.Token != "" {
		t.Fatal("introspection must not re-issue the token")
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/current", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("teardown: expected 200, got %d body=%s", resp.Code, resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/current", nil)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after teardown, got %d", resp.Code)
	}
}
