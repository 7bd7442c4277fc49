package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration. Per-user settings live in the
// user store; this covers defaults and infrastructure.
type Config struct {
	Port        string
	Environment string
	Debug       bool

	// Data layout
	DataDir          string
	KnowledgeDataDir string

	// JWT
	JWTSecret string

	// LLM
	SiliconFlowAPIKey string
	APIBaseURL        string
	ReplyModel        string
	EmbeddingModel    string
	LLMTimeoutSec     int
	LLMMaxRetries     int
	EmbedTimeoutSec   int

	// Mailbox
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

// Default model identifiers for the SiliconFlow-compatible endpoint.
const (
	DefaultAPIBaseURL     = "https://api.siliconflow.cn/v1"
	DefaultReplyModel     = "moonshotai/Kimi-K2-Thinking"
	DefaultEmbeddingModel = "Qwen/Qwen3-Embedding-4B"
)

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		Debug:       getEnvBool("DEBUG", false),

		DataDir:          getEnv("DATA_DIR", "data"),
		KnowledgeDataDir: getEnv("KNOWLEDGE_DATA_DIR", "knowledge_data"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SiliconFlowAPIKey: getEnv("SILICONFLOW_API_KEY", ""),
		APIBaseURL:        getEnv("API_BASE_URL", DefaultAPIBaseURL),
		ReplyModel:        getEnv("REPLY_MODEL", DefaultReplyModel),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		LLMTimeoutSec:     getEnvInt("LLM_TIMEOUT_SEC", 90),
		LLMMaxRetries:     getEnvInt("LLM_MAX_RETRIES", 2),
		EmbedTimeoutSec:   getEnvInt("EMBED_TIMEOUT_SEC", 120),

		IMAPHost: getEnv("IMAP_HOST", "imap.qq.com"),
		IMAPPort: getEnvInt("IMAP_PORT", 993),
		SMTPHost: getEnv("SMTP_HOST", "smtp.qq.com"),
		SMTPPort: getEnvInt("SMTP_PORT", 465),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
