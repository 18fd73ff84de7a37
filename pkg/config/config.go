package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds pipeline configuration. All values load from environment
// variables with safe development defaults.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Config struct {
	// LLM inference.
	LLMEndpoint       string
	LLMAPIKey         string
	LLMModelID        string
	LLMTemperature    float64 // must stay within [0.1, 0.2]
	LLMMaxTokens      int
	LLMMaxRetries     int
	LLMRetryBaseDelay time.Duration
	LLMCallTimeout    time.Duration

	// Vision backend.
	VisionEndpoint string
	VisionAPIKey   string
	VisionTimeout  time.Duration

	// Upload / object store.
	ObjectStoreBackend string // "s3" or "gcs"
	UploadBucket       string
	AWSRegion          string
	S3Endpoint         string // optional custom endpoint (MinIO, LocalStack)
	MaxUploadSize      int64
	UploadAllowedMime  []string
	PresignTTL         time.Duration

	// Store gateway.
	StoreBackend string // "sqlite" or "postgres"
	DatabaseURL  string
	SQLitePath   string

	// Events / redis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Pipeline behavior.
	ProfilePath       string // optional YAML pipeline profile
	DeleteMode        string // "soft" or "hard"
	AdaptersEnabled   []string
	ExecutionDeadline time.Duration
	AdapterTimeout    time.Duration

	// Per-owner rate limiting.
	OwnerRateRPM   int
	OwnerRateBurst int

	// Observability.
	LogLevel     string
	OTLPEndpoint string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		LLMEndpoint:       getenv("LLM_ENDPOINT", "http://localhost:1234/v1/chat/completions"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModelID:        getenv("LLM_MODEL_ID", "card-analyst-v1"),
		LLMTemperature:    clampTemperature(getfloat("LLM_TEMPERATURE", 0.1)),
		LLMMaxTokens:      getint("LLM_MAX_TOKENS", 4096),
		LLMMaxRetries:     getint("LLM_MAX_RETRIES", 3),
		LLMRetryBaseDelay: getduration("LLM_RETRY_BASE_DELAY_MS", 1000*time.Millisecond),
		LLMCallTimeout:    getduration("LLM_CALL_TIMEOUT_MS", 20*time.Second),

		VisionEndpoint: getenv("VISION_ENDPOINT", "http://localhost:8085/v1/analyze"),
		VisionAPIKey:   os.Getenv("VISION_API_KEY"),
		VisionTimeout:  getduration("VISION_TIMEOUT_MS", 15*time.Second),

		ObjectStoreBackend: getenv("OBJECT_STORE_BACKEND", "s3"),
		UploadBucket:       getenv("UPLOAD_BUCKET", "card-uploads"),
		AWSRegion:          getenv("AWS_REGION", "us-east-1"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		MaxUploadSize:      getint64("MAX_UPLOAD_SIZE", 12*1024*1024),
		UploadAllowedMime:  getlist("UPLOAD_ALLOWED_MIME", []string{"image/jpeg", "image/png", "image/heic"}),
		PresignTTL:         getduration("PRESIGN_TTL_MS", 60*time.Second),

		StoreBackend: getenv("STORE_BACKEND", "sqlite"),
		DatabaseURL:  getenv("DATABASE_URL", "postgres://cards@localhost:5432/cards?sslmode=disable"),
		SQLitePath:   getenv("SQLITE_PATH", "cards.db"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),

		ProfilePath:       os.Getenv("PROFILE_PATH"),
		DeleteMode:        getenv("DELETE_MODE", "soft"),
		AdaptersEnabled:   getlist("ADAPTERS_ENABLED", []string{"auctionfeed", "marketplace", "pricehistory"}),
		ExecutionDeadline: getduration("EXECUTION_DEADLINE_MS", 120*time.Second),
		AdapterTimeout:    getduration("ADAPTER_TIMEOUT_MS", 10*time.Second),

		OwnerRateRPM:   getint("OWNER_RATE_RPM", 60),
		OwnerRateBurst: getint("OWNER_RATE_BURST", 10),

		LogLevel:     getenv("LOG_LEVEL", "INFO"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
	}
}

// clampTemperature keeps sampling within the deterministic band the reasoning
// contract requires.
func clampTemperature(t float64) float64 {
	if t < 0.1 {
		return 0.1
	}
	if t > 0.2 {
		return 0.2
	}
	return t
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getint64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func getlist(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
