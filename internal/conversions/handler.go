package conversions

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"swisscv-backend/cv/contract"
	cvmodel "swisscv-backend/cv/model"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/shared/server/middleware"
	"swisscv-backend/internal/shared/server/respond"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Handler wires HTTP handlers to the conversions service.
type Handler struct {
	Svc  *Service
	poll *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, poll: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches conversion routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversions", h.createConversion)
	rg.GET("/conversions/:id", h.getConversion)
	rg.GET("/conversions/:id/cv", h.getCV)
	rg.PUT("/conversions/:id/cv", h.updateCV)
	rg.POST("/conversions/:id/retry", h.retryConversion)
	rg.GET("/conversions/:id/download", h.downloadConversion)
}

type createConversionRequest struct {
	DocumentIDs []string `json:"documentIds"`
	Notes       string   `json:"notes"`
	Language    string   `json:"language"`
	Tone        string   `json:"tone"`
}

func (h *Handler) createConversion(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	var req createConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidationFailed, "invalid request body", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	conv, err := h.Svc.Create(ctx, userID, CreateInput{
		DocumentIDs: req.DocumentIDs,
		Notes:       req.Notes,
		Language:    req.Language,
		Tone:        req.Tone,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyInput):
			respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeEmptyInput, "no document text or notes to rewrite", nil)
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeValidationFailed, validationMessage(err), nil)
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to start conversion", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"conversionId": conv.ID,
		"status":       conv.Status,
	})
}

func (h *Handler) getConversion(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	conversionID := c.Param("id")

	if !h.poll.Allow(userID, conversionID) {
		c.Header("Retry-After", strconv.Itoa(h.poll.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, respond.CodeRateLimited, "polling too frequently, slow down", nil)
		return
	}

	conv, err := h.Svc.Get(c.Request.Context(), userID, conversionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch conversion", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, toResponse(conv))
}

func (h *Handler) getCV(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	conversionID := c.Param("id")

	cv, err := h.Svc.GetCV(c.Request.Context(), userID, conversionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion not found", nil)
		case errors.Is(err, ErrNoCV):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion has no structured cv yet", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch cv", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, cv)
}

func (h *Handler) updateCV(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	conversionID := c.Param("id")

	var cv cvmodel.StructuredCV
	if err := c.ShouldBindJSON(&cv); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidationFailed, "invalid request body", nil)
		return
	}

	updated, err := h.Svc.UpdateCV(c.Request.Context(), userID, conversionID, cv)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeValidationFailed, validationMessage(err), nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to update cv", nil)
		}
		return
	}

	respond.JSON(c, http.StatusOK, updated)
}

func (h *Handler) retryConversion(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	conversionID := c.Param("id")

	ctx := WithRequestID(c.Request.Context(), c.GetString("requestId"))
	conv, err := h.Svc.Retry(ctx, userID, conversionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion not found", nil)
		case errors.Is(err, ErrNotRetryable):
			respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeValidationFailed, "conversion is not in a failed state", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to retry conversion", nil)
		}
		return
	}

	respond.JSON(c, http.StatusAccepted, gin.H{
		"conversionId": conv.ID,
		"status":       conv.Status,
	})
}

func (h *Handler) downloadConversion(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	conversionID := c.Param("id")

	data, fileName, err := h.Svc.Render(c.Request.Context(), userID, conversionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion not found", nil)
		case errors.Is(err, ErrNoCV):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "conversion has no structured cv yet", nil)
		case errors.Is(err, contract.ErrTemplateMismatch):
			respond.Error(c, http.StatusUnprocessableEntity, ErrorCodeTemplateMismatch, sanitizeError(err), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to render cv", nil)
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, docxContentType, data)
}

// validationMessage strips the sentinel prefix so the response names
// the offending field directly.
func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx != -1 {
		return msg[idx+2:]
	}
	return msg
}
