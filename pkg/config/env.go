package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvTrackmanWebhookSecret = "TRACKMAN_WEBHOOK_SECRET"

	EnvDirectoryBaseURL      = "DIRECTORY_BASE_URL"
	EnvDirectoryCacheTTL     = "DIRECTORY_CACHE_TTL"
	EnvDirectoryRetryMax     = "DIRECTORY_RETRY_MAX"
	EnvDirectoryRetryBackoff = "DIRECTORY_RETRY_BACKOFF"
	EnvBookingAPIBaseURL     = "BOOKING_API_BASE_URL"

	EnvMatchMinScore      = "MATCH_MIN_SCORE"
	EnvMatchHighScore     = "MATCH_HIGH_SCORE"
	EnvMatchMaxCandidates = "MATCH_MAX_CANDIDATES"

	EnvImportWorkers = "IMPORT_WORKERS"
	EnvImportLockTTL = "IMPORT_LOCK_TTL"
	EnvMaxUploadSize = "MAX_UPLOAD_SIZE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
