package documents

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/extract"
	"swisscv-backend/internal/shared/server/middleware"
	"swisscv-backend/internal/shared/server/respond"
)

const (
	codeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	codeExtractionFailed  = "EXTRACTION_FAILED"
	codeValidationFailed  = "VALIDATION_FAILED"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// MaxUploadBytes caps the whole multipart request body.
	MaxUploadBytes int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Handler{Svc: svc, MaxUploadBytes: maxUploadBytes}
}

// RegisterRoutes attaches document routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.GET("/documents", h.list)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respond.Error(c, http.StatusRequestEntityTooLarge, codeValidationFailed, "file exceeds the upload size limit", nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, codeValidationFailed, "file is required", nil)
		return
	}

	kind, err := ParseKind(c.PostForm("kind"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, codeValidationFailed, err.Error(), nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, codeValidationFailed, "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), userID, kind, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			respond.Error(c, http.StatusUnsupportedMediaType, codeUnsupportedFormat, err.Error(), nil)
		case errors.Is(err, extract.ErrExtraction):
			respond.Error(c, http.StatusUnprocessableEntity, codeExtractionFailed, err.Error(), nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, codeValidationFailed, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to upload document", nil)
		}
		return
	}

	respond.JSON(c, http.StatusCreated, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 50 {
		limit = 50
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	docs, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, codeValidationFailed, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to list documents", nil)
		}
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}

	respond.JSON(c, http.StatusOK, resp)
}
