package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/shared/auth"
	"swisscv-backend/internal/shared/server/respond"
)

const (
	userIDKey    = "userId"
	sessionIDKey = "sessionId"
)

// Auth validates session tokens or guest headers and stores identity in
// context. Session creation itself is unauthenticated: it is the endpoint
// that mints tokens.
func Auth(allowGuest bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		if c.Request.URL.Path == "/api/v1/sessions" && c.Request.Method == http.MethodPost {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))

		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifySessionToken(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Sub)
			if claims.Sid != "" {
				c.Set(sessionIDKey, claims.Sid)
			}
			c.Set("isGuest", false)
			c.Next()
			return
		}

		if allowGuest {
			guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id"))
			if guestID != "" {
				c.Set(userIDKey, "guest:"+guestID)
				c.Set(sessionIDKey, guestID)
				c.Set("isGuest", true)
				c.Next()
				return
			}
		}

		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "Missing identity", nil)
	}
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// SessionIDFromContext fetches the session ID set by the auth middleware.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(sessionIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
