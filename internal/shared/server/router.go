package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/conversions"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/sessions"
	"swisscv-backend/internal/shared/config"
	"swisscv-backend/internal/shared/metrics"
	"swisscv-backend/internal/shared/server/middleware"
	"swisscv-backend/internal/shared/server/respond"
)

const conversionsCreateGroup = "CONVERSIONS_CREATE"

// RouterDeps carries the handlers the router wires up.
type RouterDeps struct {
	Config      config.Config
	Sessions    *sessions.Handler
	Documents   *documents.Handler
	Conversions *conversions.Handler
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.Auth(deps.Config.Env != "production"),
		middleware.RateLimit(rateLimitConfig(deps.Config)),
	)

	registerMeRoutes(api)
	deps.Sessions.RegisterRoutes(api)
	deps.Documents.RegisterRoutes(api)
	deps.Conversions.RegisterRoutes(api)

	return r
}

// rateLimitConfig throttles conversion creation per principal; the two
// LLM calls behind it are the expensive part of the system.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	perMinute := cfg.ConversionsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.ConversionsBurst
	if burst <= 0 {
		burst = 5
	}
	return middleware.RateLimitConfig{
		Rules: map[string]middleware.RateLimitRule{
			conversionsCreateGroup: {Rate: float64(perMinute) / 60.0, Burst: burst},
		},
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method == http.MethodPost && c.FullPath() == "/api/v1/conversions" {
				return conversionsCreateGroup
			}
			return ""
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
