// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// LLM settings
	OpenAIAPIKey    string
	AnthropicAPIKey string
	DefaultProvider string
	Model           string
	MaxTokens       int

	// Retrieval settings (Azure AI Search)
	SearchEndpoint string
	SearchAPIKey   string
	SalesIndex     string
	AccountIndex   string
	ClientIndex    string
	EmbeddingModel string
	SearchTopK     int

	// Transcript store
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Usage ledger
	UsageRetention time.Duration

	// JWT settings (auth disabled when secret is empty)
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from the environment, consulting .env first.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// LLM
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", "openai"),
		Model:           getEnv("MODEL", "gpt-4.1-mini"),
		MaxTokens:       getIntEnv("MAX_TOKENS", 4096),

		// Retrieval
		SearchEndpoint: getEnv("AZURE_SEARCH_ENDPOINT", ""),
		SearchAPIKey:   getEnv("AZURE_SEARCH_ADMIN_KEY", ""),
		SalesIndex:     getEnv("AZURE_SEARCH_INDEX_SALES", "sales-docs"),
		AccountIndex:   getEnv("AZURE_SEARCH_INDEX_ACCOUNT", "account-docs"),
		ClientIndex:    getEnv("AZURE_SEARCH_INDEX_CLIENT", "client-docs"),
		EmbeddingModel: getEnv("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		SearchTopK:     getIntEnv("AZURE_SEARCH_TOP_K", 5),

		// Transcript store (empty URL selects the in-memory store)
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Usage ledger
		UsageRetention: getDurationEnv("USAGE_RETENTION", 24*time.Hour),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
