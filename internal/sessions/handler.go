package sessions

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/shared/server/middleware"
	"swisscv-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the sessions service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches session routes to the router group. Creation
// is the unauthenticated endpoint that mints tokens; the /current pair
// requires the identity the auth middleware established.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sessions", h.createSession)
	rg.GET("/sessions/current", h.currentSession)
	rg.DELETE("/sessions/current", h.teardownSession)
}

type createSessionRequest struct {
	Password string `json:"password"`
	Label    string `json:"label"`
}

type sessionResponse struct {
	SessionID  string    `json:"sessionId"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Token      string    `json:"token,omitempty"`
}

func toResponse(session Session, token string) sessionResponse {
	return sessionResponse{
		SessionID:  session.ID,
		Label:      session.Label,
		CreatedAt:  session.CreatedAt,
		LastSeenAt: session.LastSeenAt,
		ExpiresAt:  session.ExpiresAt,
		Token:      token,
	}
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.Error(c, http.StatusBadRequest, respond.CodeUnauthorized, "invalid request body", nil)
			return
		}
	}

	session, token, err := h.Svc.Create(c.Request.Context(), CreateInput{
		Password: req.Password,
		Label:    req.Label,
	})
	if err != nil {
		if errors.Is(err, ErrWrongPassword) {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "wrong or missing access password", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to create session", nil)
		return
	}

	respond.JSON(c, http.StatusCreated, toResponse(session, token))
}

func (h *Handler) currentSession(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)

	session, err := h.Svc.Get(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "session not found or expired", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch session", nil)
		return
	}

	respond.JSON(c, http.StatusOK, toResponse(session, ""))
}

func (h *Handler) teardownSession(c *gin.Context) {
	sessionID := middleware.SessionIDFromContext(c)
	principal := middleware.UserIDFromContext(c)

	result, err := h.Svc.Teardown(c.Request.Context(), sessionID, principal)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to tear down session", nil)
		return
	}

	respond.JSON(c, http.StatusOK, result)
}
