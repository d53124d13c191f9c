package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Dispatch modes for the per-mailbox auto-close jobs
const (
	DispatchInline     = "inline"
	DispatchKubernetes = "kubernetes"
)

// Config holds all configuration for the automation engine
type Config struct {
	Port                string
	Version             string
	LogLevel            string
	DatabaseURL         string // Helpdesk Postgres (pgvector) - conversations, messages, knowledge bank
	PlatformDatabaseURL string // Platform customer store - read-only, MySQL or Postgres
	RedisAddr           string // Rotation counter store; empty falls back to an in-process counter
	RedisKeyPrefix      string

	OpenAIKey                      string
	AzureOpenAIEndpoint            string
	AzureOpenAIKey                 string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int // OpenAI API timeout in seconds

	SendGridAPIKey        string
	NotificationFromEmail string
	NotificationFromName  string
	AppBaseURL            string // Used to build conversation links in notifications

	EventSigningToken   string  // Bearer token required by the event intake endpoints
	SimilarityThreshold float64 // Retrieval similarity cutoff (exclusive)
	VipEmailsEnabled    bool

	AutoCloseIntervalHours int
	AutoCloseDispatch      string // inline or kubernetes
	K8sNamespace           string
	WorkerImage            string

	CustomerCacheTTLMinutes  int
	EmbeddingCacheTTLMinutes int
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:                getEnv("PORT", "8080"),
		Version:             getEnv("VERSION", "1.0.0"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		PlatformDatabaseURL: os.Getenv("PLATFORM_DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisKeyPrefix:      getEnv("REDIS_KEY_PREFIX", "auto-assign-message-queue"),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 60),

		SendGridAPIKey:        os.Getenv("SENDGRID_API_KEY"),
		NotificationFromEmail: getEnv("NOTIFICATION_FROM_EMAIL", "notifications@helpdesk.local"),
		NotificationFromName:  getEnv("NOTIFICATION_FROM_NAME", "Helpdesk"),
		AppBaseURL:            strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),

		EventSigningToken:   os.Getenv("EVENT_SIGNING_TOKEN"),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.4),
		VipEmailsEnabled:    getEnvBool("VIP_EMAILS_ENABLED", true),

		AutoCloseIntervalHours: getEnvInt("AUTO_CLOSE_INTERVAL_HOURS", 1),
		AutoCloseDispatch:      strings.ToLower(getEnv("AUTO_CLOSE_DISPATCH", DispatchInline)),
		K8sNamespace:           getEnv("K8S_NAMESPACE", "helpdesk"),
		WorkerImage:            os.Getenv("WORKER_IMAGE"),

		CustomerCacheTTLMinutes:  getEnvInt("CUSTOMER_CACHE_TTL_MINUTES", 5),
		EmbeddingCacheTTLMinutes: getEnvInt("EMBEDDING_CACHE_TTL_MINUTES", 10),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIEndpoint != "" && c.AzureOpenAIKey != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is configured
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "supportcore").
		Str("version", c.Version).
		Logger()

	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}
