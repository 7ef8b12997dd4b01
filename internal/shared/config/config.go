package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	Env             string

	DatabaseURL string
	RedisURL    string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	QueueURL string

	SpeechEndpoint string
	SpeechAPIKey   string
	SpeechLocale   string

	LLMProvider string
	LLMModel    string

	Normalizer string

	PollInterval         time.Duration
	TranscriptionTimeout time.Duration
	SweepInterval        time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:             env,

		DatabaseURL: dbURL,
		RedisURL:    getEnv("REDIS_URL", ""),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		QueueURL: getEnv("VA_SQS_QUEUE_URL", ""),

		SpeechEndpoint: getEnv("SPEECH_ENDPOINT", ""),
		SpeechAPIKey:   getEnv("SPEECH_API_KEY", ""),
		SpeechLocale:   getEnv("SPEECH_LOCALE", "fr-FR"),

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMModel:    getEnv("LLM_MODEL", ""),

		Normalizer: normalizeNormalizer(getEnv("AUDIO_NORMALIZER", "ffmpeg")),

		PollInterval:         getEnvDuration("TRANSCRIPTION_POLL_INTERVAL", 30*time.Second),
		TranscriptionTimeout: getEnvDuration("TRANSCRIPTION_TIMEOUT", 2*time.Hour),
		SweepInterval:        getEnvDuration("STALE_SWEEP_INTERVAL", 2*time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if val, err := time.ParseDuration(raw); err == nil && val > 0 {
		return val
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: %s invalid duration %q, using default %s", key, raw, def)
	return def
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

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeNormalizer(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "none", "passthrough":
		return "passthrough"
	default:
		return "ffmpeg"
	}
}
