package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	LLMProvider        string
	LLMModel           string
	GeminiAPIKey       string
	OpenAIAPIKey       string
	LLMTimeoutSeconds  int
	LLMMaxOutputTokens int

	AccessPassword    string
	SessionTTLMinutes int

	DatabaseURL string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	TemplateDir string

	MaxUploadMB          int
	ConversionsPerMinute int
	ConversionsBurst     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		_ = godotenv.Load(path)
	}

	provider := normalizeProvider(getEnv("LLM_PROVIDER", "gemini"))

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             normalizeEnv(getEnv("ENV", "dev")),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		LLMProvider:        provider,
		LLMModel:           getEnv("LLM_MODEL", defaultModel(provider)),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		LLMTimeoutSeconds:  getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		LLMMaxOutputTokens: getEnvInt("LLM_MAX_OUTPUT_TOKENS", 8192),

		AccessPassword:    os.Getenv("ACCESS_PASSWORD"),
		SessionTTLMinutes: getEnvInt("SESSION_TTL_MINUTES", 120),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		TemplateDir: getEnv("TEMPLATE_DIR", "assets/templates"),

		MaxUploadMB:          getEnvInt("MAX_UPLOAD_MB", 10),
		ConversionsPerMinute: getEnvInt("RATE_LIMIT_CONVERSIONS_PER_MIN", 10),
		ConversionsBurst:     getEnvInt("RATE_LIMIT_BURST", 5),
	}
}

// Validate reports startup-time configuration errors. A missing API key for
// the selected LLM provider is fatal here rather than failing per request.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini":
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case "openai":
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider)
	}
	if c.Env == "production" && strings.TrimSpace(os.Getenv("JWT_SECRET")) == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	return nil
}

// APIKey returns the credential for the selected provider.
func (c Config) APIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	default:
		return "gemini"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return "gpt-4o-mini"
	}
	return "gemini-2.5-flash"
}
