package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"migrations"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Ingest
	MaxBatchSize         int           `env:"MAX_BATCH_SIZE" env-default:"1000"`
	AutomationBatchLimit int           `env:"AUTOMATION_BATCH_LIMIT" env-default:"100"`
	MappingCacheTTL      time.Duration `env:"MAPPING_CACHE_TTL" env-default:"15m"`
	MappingCacheSize     int           `env:"MAPPING_CACHE_SIZE" env-default:"10000"`

	// Field detection
	DetectorProvider string        `env:"DETECTOR_PROVIDER" env-default:"disabled"` // disabled | gemini
	DetectorTimeout  time.Duration `env:"DETECTOR_TIMEOUT" env-default:"10s"`
	GeminiAPIKey     string        `env:"GEMINI_API_KEY" env-default:""`
	GeminiModel      string        `env:"GEMINI_MODEL" env-default:"gemini-2.0-flash"`
	GeminiBaseURL    string        `env:"GEMINI_BASE_URL" env-default:"https://generativelanguage.googleapis.com"`

	// Redis (locks + rate limiting)
	RedisEnabled      bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost         string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB           int    `env:"REDIS_DB" env-default:"0"`
	RedisLocksEnabled bool   `env:"REDIS_LOCKS_ENABLED" env-default:"false"`

	// Rate limiting
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" env-default:"300"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"60s"`

	// Auth
	APIKeyResetCooldown time.Duration `env:"API_KEY_RESET_COOLDOWN" env-default:"30m"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"24h"`
	ResetTokenTTL       time.Duration `env:"RESET_TOKEN_TTL" env-default:"1h"`
	ResetTokenDebug     bool          `env:"RESET_TOKEN_DEBUG" env-default:"false"`
	OIDCEnabled         bool          `env:"OIDC_ENABLED" env-default:"false"`
	OIDCIssuerURL       string        `env:"OIDC_ISSUER_URL" env-default:""`
	OIDCClientID        string        `env:"OIDC_CLIENT_ID" env-default:""`

	// Request guards
	AllowedOriginRegex  string   `env:"ALLOWED_ORIGIN_REGEX" env-default:""`
	AllowedHostSuffixes []string `env:"ALLOWED_HOST_SUFFIXES" env-default:""`

	// Email
	EmailProvider string `env:"EMAIL_PROVIDER" env-default:"console"` // console | resend
	EmailFrom     string `env:"EMAIL_FROM" env-default:"no-reply@clover.local"`
	ResendAPIKey  string `env:"RESEND_API_KEY" env-default:""`
	ResendBaseURL string `env:"RESEND_BASE_URL" env-default:"https://api.resend.com"`

	// Kafka events (disabled when no brokers are configured)
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:""`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"ingest-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingExporter string `env:"TRACING_EXPORTER" env-default:"console"` // console | otlp
	OTLPEndpoint    string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol    string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure    bool   `env:"OTLP_INSECURE" env-default:"true"`
}
