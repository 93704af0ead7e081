package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string

	// Chunking parameters. Units are characters; the embedder accepts raw
	// text, so characters are the consistent unit end to end.
	ChunkSize    int
	ChunkOverlap int

	// Retrieval parameters.
	MaxChunks           int
	SimilarityThreshold float64

	// HistoryBudget caps how many characters of prior conversation are
	// included in a prompt. Oldest turns are dropped first.
	HistoryBudget int

	EmbedBatchSize    int
	LLMTimeoutSeconds int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "ragbot.db"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 100),
		MaxChunks:           getEnvAsInt("MAX_CHUNKS", 5),
		SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.5),
		HistoryBudget:       getEnvAsInt("HISTORY_BUDGET", 4000),
		EmbedBatchSize:      getEnvAsInt("EMBED_BATCH_SIZE", 16),
		LLMTimeoutSeconds:   getEnvAsInt("LLM_TIMEOUT_SECONDS", 60),
	}

	if AppConfig.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY environment variable is required")
	}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
