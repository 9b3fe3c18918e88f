package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "clubsync"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultDirectoryBaseURL      = "http://localhost:8081"
	DefaultDirectoryCacheTTL     = 30 * time.Second
	DefaultDirectoryRetryMax     = 3
	DefaultDirectoryRetryBackoff = 250 * time.Millisecond
	DefaultBookingAPIBaseURL     = "http://localhost:8082"

	// Matcher thresholds: candidates below the minimum score are discarded,
	// a single candidate at or above the high score auto-resolves.
	DefaultMatchMinScore      = 50
	DefaultMatchHighScore     = 80
	DefaultMatchMaxCandidates = 10

	DefaultImportWorkers = 4
	DefaultImportLockTTL = 10 * time.Minute
	DefaultMaxUploadSize = 10 * 1024 * 1024 // 10MB

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 50
)
