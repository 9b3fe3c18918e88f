package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"clubsync/pkg/client"
	"clubsync/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	TrackmanWebhookSecret string

	DirectoryBaseURL      string
	DirectoryCacheTTL     time.Duration
	DirectoryRetryMax     int
	DirectoryRetryBackoff time.Duration
	BookingAPIBaseURL     string

	MatchMinScore      int
	MatchHighScore     int
	MatchMaxCandidates int

	ImportWorkers int
	ImportLockTTL time.Duration
	MaxUploadSize int

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		TrackmanWebhookSecret: getEnvStr(EnvTrackmanWebhookSecret, ""),

		DirectoryBaseURL:      getEnvStr(EnvDirectoryBaseURL, DefaultDirectoryBaseURL),
		DirectoryCacheTTL:     getEnvDuration(EnvDirectoryCacheTTL, DefaultDirectoryCacheTTL),
		DirectoryRetryMax:     getEnvNum(EnvDirectoryRetryMax, DefaultDirectoryRetryMax),
		DirectoryRetryBackoff: getEnvDuration(EnvDirectoryRetryBackoff, DefaultDirectoryRetryBackoff),
		BookingAPIBaseURL:     getEnvStr(EnvBookingAPIBaseURL, DefaultBookingAPIBaseURL),

		MatchMinScore:      getEnvNum(EnvMatchMinScore, DefaultMatchMinScore),
		MatchHighScore:     getEnvNum(EnvMatchHighScore, DefaultMatchHighScore),
		MatchMaxCandidates: getEnvNum(EnvMatchMaxCandidates, DefaultMatchMaxCandidates),

		ImportWorkers: getEnvNum(EnvImportWorkers, DefaultImportWorkers),
		ImportLockTTL: getEnvDuration(EnvImportLockTTL, DefaultImportLockTTL),
		MaxUploadSize: getEnvNum(EnvMaxUploadSize, DefaultMaxUploadSize),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.DirectoryBaseURL == "" {
		errors = append(errors, "DirectoryBaseURL cannot be empty")
	}
	if cfg.BookingAPIBaseURL == "" {
		errors = append(errors, "BookingAPIBaseURL cannot be empty")
	}
	if cfg.DirectoryCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("DirectoryCacheTTL must be positive, got: %s", cfg.DirectoryCacheTTL))
	}
	if cfg.DirectoryRetryMax < 0 {
		errors = append(errors, fmt.Sprintf("DirectoryRetryMax cannot be negative, got: %d", cfg.DirectoryRetryMax))
	}
	if cfg.DirectoryRetryBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("DirectoryRetryBackoff must be positive, got: %s", cfg.DirectoryRetryBackoff))
	}

	if cfg.MatchMinScore < 0 || cfg.MatchMinScore > 100 {
		errors = append(errors, fmt.Sprintf("MatchMinScore must be in [0,100], got: %d", cfg.MatchMinScore))
	}
	if cfg.MatchHighScore < cfg.MatchMinScore || cfg.MatchHighScore > 100 {
		errors = append(errors, fmt.Sprintf("MatchHighScore (%d) must be between MatchMinScore (%d) and 100", cfg.MatchHighScore, cfg.MatchMinScore))
	}
	if cfg.MatchMaxCandidates <= 0 {
		errors = append(errors, fmt.Sprintf("MatchMaxCandidates must be positive, got: %d", cfg.MatchMaxCandidates))
	}

	if cfg.ImportWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("ImportWorkers must be positive, got: %d", cfg.ImportWorkers))
	}
	if cfg.ImportLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("ImportLockTTL must be positive, got: %s", cfg.ImportLockTTL))
	}
	if cfg.MaxUploadSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxUploadSize must be positive, got: %d", cfg.MaxUploadSize))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"trackman_secret_set", cfg.TrackmanWebhookSecret != "",
		"directory_base_url", cfg.DirectoryBaseURL,
		"directory_cache_ttl", cfg.DirectoryCacheTTL,
		"directory_retry_max", cfg.DirectoryRetryMax,
		"booking_api_base_url", cfg.BookingAPIBaseURL,
		"match_min_score", cfg.MatchMinScore,
		"match_high_score", cfg.MatchHighScore,
		"match_max_candidates", cfg.MatchMaxCandidates,
		"import_workers", cfg.ImportWorkers,
		"import_lock_ttl", cfg.ImportLockTTL,
		"max_upload_size", cfg.MaxUploadSize,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
