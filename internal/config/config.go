package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

const DefaultMaxMessageBytes = 10 << 20

type Config struct {
	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	JWTSecret   string

	StoreBackend  string
	RedisAddr     string
	RedisPassword string

	LLMProvider       string
	LLMTimeout        time.Duration
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIChatModel   string
	OpenAIVisionModel string
	OpenAIImageModel  string
	GeminiModel       string

	SendRatePerMinute int // 0 disables send throttling
	SendRateBurst     int
	MaxMessageBytes   int64 // request body cap for message sends, attachments included
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg, err := FromEnv()
	if err != nil {
		log.Fatal(err)
	}
	AppConfig = cfg
}

// FromEnv builds a Config from the process environment without touching
// AppConfig.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL: getEnv("DATABASE_URL", "gwi_chat.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		LogLevel:    strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StoreBackendSQLite)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		LLMProvider:       strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		LLMTimeout:        time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIChatModel:   getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4-vision-preview"),
		OpenAIImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),

		SendRatePerMinute: getEnvAsInt("SEND_RATE_PER_MINUTE", 20),
		SendRateBurst:     getEnvAsInt("SEND_RATE_BURST", 5),
		MaxMessageBytes:   int64(getEnvAsInt("MAX_MESSAGE_BYTES", DefaultMaxMessageBytes)),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}

	switch c.StoreBackend {
	case StoreBackendSQLite, StoreBackendRedis, StoreBackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("MAX_MESSAGE_BYTES must be positive")
	}
	return nil
}

func (c Config) Debug() bool {
	return c.LogLevel == "DEBUG"
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
