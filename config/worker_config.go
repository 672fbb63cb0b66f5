package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreBoth     = "both"
	StoreNeo4j    = "neo4j"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	DBMaxConns  int

	// Redis job stream
	RedisURL          string
	JobStream         string
	JobGroup          string
	WorkerID          string
	WorkerConcurrency int
	JobTimeout        time.Duration

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerPendingIdleSec  int

	// MongoDB processing log sink
	MongoDBURL  string
	MongoDBName string
	LogStore    string

	// Neo4j embedding store
	Neo4jURL            string
	Neo4jUsername       string
	Neo4jPassword       string
	Neo4jDatabase       string
	EmbeddingStore      string
	EmbeddingDimensions int // must match the store's vector index

	// Encryption
	EncryptionMasterKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string

	// Models
	DefaultLLMModel string
	OllamaBaseURL   string
	GeminiBaseURL   string
	ModelTimeout    time.Duration

	// Trigger auth
	WorkerAPISecret string

	// Batch sizes
	BackfillMaxMessages   int
	BackfillCheckpoint    int
	IncrementalCheckpoint int

	// Stale RUNNING jobs
	StaleJobThreshold time.Duration
	StaleJobInterval  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 10),

		// Redis
		RedisURL:          getEnv("REDIS_URL", ""),
		JobStream:         getEnv("JOB_STREAM", "mailsync:jobs"),
		JobGroup:          getEnv("JOB_GROUP", "mailsync-workers"),
		WorkerID:          getEnv("WORKER_ID", generateWorkerID()),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		JobTimeout:        time.Duration(getEnvInt("JOB_TIMEOUT_MIN", 30)) * time.Minute,

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 10),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),
		ConsumerPendingIdleSec:  getEnvInt("CONSUMER_PENDING_IDLE_SEC", 45*60),

		// MongoDB
		MongoDBURL:  getEnv("MONGODB_URL", ""),
		MongoDBName: getEnv("MONGODB_NAME", "mailsync"),
		LogStore:    strings.ToLower(getEnv("LOG_STORE", StorePostgres)),

		// Neo4j
		Neo4jURL:            getEnv("NEO4J_URL", ""),
		Neo4jUsername:       getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", ""),
		Neo4jDatabase:       getEnv("NEO4J_DATABASE", "neo4j"),
		EmbeddingStore:      strings.ToLower(getEnv("EMBEDDING_STORE", StorePostgres)),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 768),

		// Encryption
		EncryptionMasterKey: getEnv("ENCRYPTION_MASTER_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		// Models
		DefaultLLMModel: getEnv("DEFAULT_LLM_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ModelTimeout:    getEnvDuration("MODEL_TIMEOUT", 60*time.Second),

		WorkerAPISecret: getEnv("WORKER_API_SECRET", ""),

		// Batch
		BackfillMaxMessages:   getEnvInt("BACKFILL_MAX_MESSAGES", 5000),
		BackfillCheckpoint:    getEnvInt("BACKFILL_CHECKPOINT", 50),
		IncrementalCheckpoint: getEnvInt("INCREMENTAL_CHECKPOINT", 10),

		StaleJobThreshold: getEnvDuration("STALE_JOB_THRESHOLD", time.Hour),
		StaleJobInterval:  getEnvDuration("STALE_JOB_INTERVAL", 10*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the worker cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.EncryptionMasterKey == "" {
		errs = append(errs, errors.New("ENCRYPTION_MASTER_KEY is required"))
	}
	switch c.LogStore {
	case StorePostgres, StoreMongo, StoreBoth:
	default:
		errs = append(errs, fmt.Errorf("LOG_STORE must be postgres, mongo or both, got %q", c.LogStore))
	}
	if (c.LogStore == StoreMongo || c.LogStore == StoreBoth) && c.MongoDBURL == "" {
		errs = append(errs, fmt.Errorf("LOG_STORE=%s requires MONGODB_URL", c.LogStore))
	}
	switch c.EmbeddingStore {
	case StorePostgres:
	case StoreNeo4j:
		if c.Neo4jURL == "" {
			errs = append(errs, errors.New("EMBEDDING_STORE=neo4j requires NEO4J_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_STORE must be postgres or neo4j, got %q", c.EmbeddingStore))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesMongoLogs reports whether processing log entries go to MongoDB.
func (c *Config) UsesMongoLogs() bool {
	return c.LogStore == StoreMongo || c.LogStore == StoreBoth
}

// UsesPostgresLogs reports whether processing log entries go to the ProcessingLog table.
func (c *Config) UsesPostgresLogs() bool {
	return c.LogStore == StorePostgres || c.LogStore == StoreBoth
}
