// Package config loads process configuration from the environment,
// following the getEnvOrDefault pattern used throughout this codebase.
// Schema migrations and process bootstrapping beyond config loading are out
// of scope for this package.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level process configuration.
type Config struct {
	Database  DatabaseConfig
	Catalog   CatalogConfig
	AI        AIConfig
	Video     VideoConfig
	Queue     QueueConfig
	Scheduler SchedulerConfig
	Analysis  AnalysisConfig
}

// DatabaseConfig configures the mirror database connection pool.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Validate checks DatabaseConfig invariants (§ ambient stack).
func (c DatabaseConfig) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	return nil
}

// DSN renders the libpq-style connection string pgx's stdlib driver accepts.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// CatalogConfig configures CatalogClient (§4.1).
type CatalogConfig struct {
	Endpoint       string
	APIKey         string
	RequestTimeout time.Duration
}

func (c CatalogConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("CATALOG_ENDPOINT is required")
	}
	return nil
}

// AIConfig configures AIClient (§4.4).
type AIConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// VideoConfig configures VideoTagDetector (§4.3, §6).
type VideoConfig struct {
	Endpoint         string
	FrameInterval    float64
	Threshold        float64
	ReturnConfidence bool
	ServerTimeout    time.Duration
}

// QueueConfig configures JobManager's worker pool (§5).
type QueueConfig struct {
	WorkerCount int
}

// SchedulerConfig configures cron/interval-triggered invocations (§4.9).
type SchedulerConfig struct {
	FullSyncCron           string
	FullSyncForce          bool
	IncrementalSyncMinutes int
	CleanupIntervalMinutes int
	StaleJobAfter          time.Duration
}

// AnalysisConfig configures AnalysisEngine/BatchProcessor defaults (§4.5,
// §4.6).
type AnalysisConfig struct {
	BatchSize           int
	MaxConcurrent       int
	ConfidenceThreshold float64
}

// Load builds a Config from the process environment, applying the same
// defaults/validation pattern used for the database section throughout. A
// .env file in the working directory is loaded first if present; its
// absence is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	dbPort, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_IDLE_CONNS", "10"))
	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	db := DatabaseConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            dbPort,
		User:            getEnvOrDefault("DB_USER", "stashhog"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "stashhog"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	if err := db.Validate(); err != nil {
		return Config{}, err
	}

	catalogTimeout, err := time.ParseDuration(getEnvOrDefault("CATALOG_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid CATALOG_TIMEOUT: %w", err)
	}
	catalog := CatalogConfig{
		Endpoint:       os.Getenv("CATALOG_ENDPOINT"),
		APIKey:         os.Getenv("CATALOG_API_KEY"),
		RequestTimeout: catalogTimeout,
	}
	if err := catalog.Validate(); err != nil {
		return Config{}, err
	}

	ai := AIConfig{
		Endpoint: os.Getenv("AI_ENDPOINT"),
		APIKey:   os.Getenv("AI_API_KEY"),
		Model:    getEnvOrDefault("AI_MODEL", "gpt-4o-mini"),
	}

	frameInterval, _ := strconv.ParseFloat(getEnvOrDefault("VIDEO_FRAME_INTERVAL", "2.0"), 64)
	threshold, _ := strconv.ParseFloat(getEnvOrDefault("VIDEO_THRESHOLD", "0.3"), 64)
	videoTimeout, err := time.ParseDuration(getEnvOrDefault("VIDEO_SERVER_TIMEOUT", "300s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VIDEO_SERVER_TIMEOUT: %w", err)
	}
	video := VideoConfig{
		Endpoint:         os.Getenv("VIDEO_ENDPOINT"),
		FrameInterval:    frameInterval,
		Threshold:        threshold,
		ReturnConfidence: getEnvOrDefault("VIDEO_RETURN_CONFIDENCE", "true") == "true",
		ServerTimeout:    videoTimeout,
	}

	workerCount, _ := strconv.Atoi(getEnvOrDefault("QUEUE_WORKER_COUNT", "5"))
	incrementalMinutes, _ := strconv.Atoi(getEnvOrDefault("SCHEDULER_INCREMENTAL_MINUTES", "15"))
	cleanupMinutes, _ := strconv.Atoi(getEnvOrDefault("SCHEDULER_CLEANUP_MINUTES", "30"))
	staleAfter, err := time.ParseDuration(getEnvOrDefault("SCHEDULER_STALE_JOB_AFTER", "5m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCHEDULER_STALE_JOB_AFTER: %w", err)
	}
	batchSize, _ := strconv.Atoi(getEnvOrDefault("ANALYSIS_BATCH_SIZE", "15"))
	maxConcurrent, _ := strconv.Atoi(getEnvOrDefault("ANALYSIS_MAX_CONCURRENT", "3"))
	confidenceThreshold, _ := strconv.ParseFloat(getEnvOrDefault("ANALYSIS_CONFIDENCE_THRESHOLD", "0.7"), 64)

	return Config{
		Database: db,
		Catalog:  catalog,
		AI:       ai,
		Video:    video,
		Queue:    QueueConfig{WorkerCount: workerCount},
		Scheduler: SchedulerConfig{
			FullSyncCron:           getEnvOrDefault("SCHEDULER_FULL_SYNC_CRON", "0 2 * * *"),
			FullSyncForce:          getEnvOrDefault("SCHEDULER_FULL_SYNC_FORCE", "false") == "true",
			IncrementalSyncMinutes: maxInt(incrementalMinutes, 5),
			CleanupIntervalMinutes: cleanupMinutes,
			StaleJobAfter:          staleAfter,
		},
		Analysis: AnalysisConfig{
			BatchSize:           batchSize,
			MaxConcurrent:       maxConcurrent,
			ConfidenceThreshold: confidenceThreshold,
		},
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
