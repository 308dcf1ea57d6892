package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"swisscv-backend/internal/conversions"
	"swisscv-backend/internal/documents"
	"swisscv-backend/internal/llm"
	"swisscv-backend/internal/llm/gemini"
	"swisscv-backend/internal/llm/openai"
	"swisscv-backend/internal/sessions"
	"swisscv-backend/internal/shared/config"
	"swisscv-backend/internal/shared/server"
	"swisscv-backend/internal/shared/storage/db"
	"swisscv-backend/internal/shared/storage/object"
	localstore "swisscv-backend/internal/shared/storage/object/local"
	s3store "swisscv-backend/internal/shared/storage/object/s3"
)

// App holds shared dependencies and the wired router.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	DocumentsRepo   documents.DocumentsRepo
	ConversionsRepo conversions.Repo
	SessionsRepo    sessions.Repo

	DocumentsService   *documents.Service
	ConversionsService *conversions.Service
	SessionsService    *sessions.Service

	DocumentsHandler   *documents.Handler
	ConversionsHandler *conversions.Handler
	SessionsHandler    *sessions.Handler
}

// Build prepares shared dependencies and wires the router. The caller
// owns starting the server and the session sweeper.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	promptClient, err := BuildPromptClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
	}

	if sqlDB != nil {
		app.DocumentsRepo = &documents.PGRepo{DB: sqlDB}
		app.ConversionsRepo = &conversions.PGRepo{DB: sqlDB}
		app.SessionsRepo = &sessions.PGRepo{DB: sqlDB}
	} else {
		app.DocumentsRepo = documents.NewMemoryRepo()
		app.ConversionsRepo = conversions.NewMemoryRepo()
		app.SessionsRepo = sessions.NewMemoryRepo()
	}

	app.DocumentsService = documents.NewService(app.Store, app.DocumentsRepo)
	app.ConversionsService = &conversions.Service{
		Repo:        app.ConversionsRepo,
		Docs:        app.DocumentsService,
		LLM:         promptClient,
		Provider:    cfg.LLMProvider,
		Model:       cfg.LLMModel,
		TemplateDir: cfg.TemplateDir,
		Timeout:     time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
	}
	app.SessionsService = &sessions.Service{
		Repo:           app.SessionsRepo,
		Docs:           app.DocumentsService,
		Conversions:    app.ConversionsService,
		AccessPassword: cfg.AccessPassword,
		TTL:            time.Duration(cfg.SessionTTLMinutes) * time.Minute,
	}

	app.DocumentsHandler = documents.NewHandler(app.DocumentsService, int64(cfg.MaxUploadMB)<<20)
	app.ConversionsHandler = conversions.NewHandler(app.ConversionsService)
	app.SessionsHandler = sessions.NewHandler(app.SessionsService)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:      app.Config,
		Sessions:    app.SessionsHandler,
		Documents:   app.DocumentsHandler,
		Conversions: app.ConversionsHandler,
	})

	return app, nil
}

// BuildPromptClient constructs the provider selected by configuration.
// Config.Validate already guaranteed the credential is present.
func BuildPromptClient(ctx context.Context, cfg config.Config) (llm.PromptClient, error) {
	switch cfg.LLMProvider {
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, time.Duration(cfg.LLMTimeoutSeconds)*time.Second)
	default:
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.LLMModel, cfg.LLMMaxOutputTokens)
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
		return nil, nil
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
