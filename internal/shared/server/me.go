package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/shared/server/middleware"
	"swisscv-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint, a lightweight identity
// echo for the UI.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
		return
	}

	response := gin.H{
		"userId": userID,
	}
	if sessionID := middleware.SessionIDFromContext(c); sessionID != "" {
		response["sessionId"] = sessionID
	}
	if isGuest, ok := c.Get("isGuest"); ok {
		response["isGuest"] = isGuest
	}

	respond.JSON(c, http.StatusOK, response)
}
