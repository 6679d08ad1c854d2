package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Credits    CreditsConfig    `yaml:"credits"`
	Sync       SyncConfig       `yaml:"sync"`
	Query      QueryConfig      `yaml:"query"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Auth       AuthConfig       `yaml:"auth"`
	Notify     NotifyConfig     `yaml:"notify"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// StorageConfig holds DynamoDB/S3 storage configuration
type StorageConfig struct {
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "" // Running on ECS or Lambda, use IAM role
	}
	return c.AWSProfile
}

// RedisConfig holds Redis connection settings (deletion shadows + locks)
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig holds the advisory-lock fallback connection
type PostgresConfig struct {
	URL string `yaml:"url"`
}

// AggregatorConfig holds the mail aggregator API configuration
type AggregatorConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	InboxTriggerSlug string `yaml:"inbox_trigger_slug"`
	SentTriggerSlug  string `yaml:"sent_trigger_slug"`
	WebhookSecret    string `yaml:"webhook_secret"`
}

// Timeout returns the configured timeout as a duration
func (c AggregatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ExtractionConfig holds the commitment extraction model settings
type ExtractionConfig struct {
	ModelID   string `yaml:"model_id"`
	MaxTokens int    `yaml:"max_tokens"`
	Retries   int    `yaml:"retries"`
	Region    string `yaml:"region"`
}

// CreditsConfig holds credit metering conversion rates
type CreditsConfig struct {
	InputTokensPerCredit  float64 `yaml:"input_tokens_per_credit"`
	OutputTokensPerCredit float64 `yaml:"output_tokens_per_credit"`
	DefaultFreeTrial      float64 `yaml:"default_free_trial"`
}

// SyncConfig holds initial backfill limits
type SyncConfig struct {
	MaxInbox int `yaml:"max_inbox"`
	MaxSent  int `yaml:"max_sent"`
	Batch    int `yaml:"batch"`
}

// QueryConfig holds commitment query defaults
type QueryConfig struct {
	UpcomingDays int `yaml:"upcoming_days"`
	DefaultLimit int `yaml:"default_limit"`
}

// PipelineConfig holds live-ingest worker pool sizing
type PipelineConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// AuthConfig holds Google OAuth authentication configuration
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
	InternalAPIKey     string `yaml:"internal_api_key"`
}

// NotifyConfig holds the credit-exhaustion notification settings
type NotifyConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Region      string `yaml:"region"`
	FromAddress string `yaml:"from_address"`
	SupportURL  string `yaml:"support_url"`
}

// WarehouseConfig holds Snowflake usage-export settings
type WarehouseConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Account      string `yaml:"account"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Schema       string `yaml:"schema"`
	Warehouse    string `yaml:"warehouse"`
	Table        string `yaml:"table"`
	FlushSeconds int    `yaml:"flush_seconds"`
}

// FlushInterval returns the usage-export flush interval as a duration
func (c WarehouseConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Aggregator.TimeoutSeconds == 0 {
		cfg.Aggregator.TimeoutSeconds = 30
	}
	if cfg.Aggregator.InboxTriggerSlug == "" {
		cfg.Aggregator.InboxTriggerSlug = "GMAIL_NEW_GMAIL_MESSAGE"
	}
	if cfg.Aggregator.SentTriggerSlug == "" {
		cfg.Aggregator.SentTriggerSlug = "GMAIL_EMAIL_SENT_TRIGGER"
	}
	if cfg.Extraction.ModelID == "" {
		cfg.Extraction.ModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.Extraction.MaxTokens == 0 {
		cfg.Extraction.MaxTokens = 1500
	}
	if cfg.Extraction.Retries == 0 {
		cfg.Extraction.Retries = 2
	}
	if cfg.Extraction.Region == "" {
		cfg.Extraction.Region = cfg.Storage.AWSRegion
	}
	if cfg.Credits.InputTokensPerCredit == 0 {
		cfg.Credits.InputTokensPerCredit = 6703
	}
	if cfg.Credits.OutputTokensPerCredit == 0 {
		cfg.Credits.OutputTokensPerCredit = 1671
	}
	if cfg.Credits.DefaultFreeTrial == 0 {
		cfg.Credits.DefaultFreeTrial = 100
	}
	if cfg.Sync.MaxInbox == 0 {
		cfg.Sync.MaxInbox = 100
	}
	if cfg.Sync.MaxSent == 0 {
		cfg.Sync.MaxSent = 100
	}
	if cfg.Sync.Batch == 0 {
		cfg.Sync.Batch = 50
	}
	if cfg.Query.UpcomingDays == 0 {
		cfg.Query.UpcomingDays = 7
	}
	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = 100
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 256
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "ce_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.Notify.Region == "" {
		cfg.Notify.Region = cfg.Storage.AWSRegion
	}
	if cfg.Warehouse.Table == "" {
		cfg.Warehouse.Table = "USAGE_EVENTS"
	}
	if cfg.Warehouse.FlushSeconds == 0 {
		cfg.Warehouse.FlushSeconds = 60
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Postgres.URL = dbURL
	}
	if table := os.Getenv("DYNAMODB_TABLE"); table != "" {
		cfg.Storage.DynamoDBTable = table
	}
	if bucket := os.Getenv("S3_BUCKET"); bucket != "" {
		cfg.Storage.S3Bucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" && cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = region
	}
	if baseURL := os.Getenv("AGGREGATOR_BASE_URL"); baseURL != "" {
		cfg.Aggregator.BaseURL = baseURL
	}
	if apiKey := os.Getenv("AGGREGATOR_API_KEY"); apiKey != "" {
		cfg.Aggregator.APIKey = apiKey
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		cfg.Aggregator.WebhookSecret = secret
	}
	if model := os.Getenv("EXTRACTION_MODEL_ID"); model != "" {
		cfg.Extraction.ModelID = model
	}
	if v := envFloat("INPUT_TOKENS_PER_CREDIT"); v > 0 {
		cfg.Credits.InputTokensPerCredit = v
	}
	if v := envFloat("OUTPUT_TOKENS_PER_CREDIT"); v > 0 {
		cfg.Credits.OutputTokensPerCredit = v
	}
	if v := envFloat("DEFAULT_FREE_TRIAL_CREDITS"); v > 0 {
		cfg.Credits.DefaultFreeTrial = v
	}
	if v := envInt("INITIAL_SYNC_MAX_INBOX"); v > 0 {
		cfg.Sync.MaxInbox = v
	}
	if v := envInt("INITIAL_SYNC_MAX_SENT"); v > 0 {
		cfg.Sync.MaxSent = v
	}
	if v := envInt("INITIAL_SYNC_BATCH"); v > 0 {
		cfg.Sync.Batch = v
	}
	if v := envInt("COMMITMENT_UPCOMING_DAYS"); v > 0 {
		cfg.Query.UpcomingDays = v
	}
	if v := envInt("COMMITMENT_DEFAULT_LIMIT"); v > 0 {
		cfg.Query.DefaultLimit = v
	}
	if v := envInt("EXTRACTION_RETRIES"); v > 0 {
		cfg.Extraction.Retries = v
	}
	if v := envInt("EXTRACTION_MAX_TOKENS"); v > 0 {
		cfg.Extraction.MaxTokens = v
	}

	// Auth overrides
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}
	if v := os.Getenv("INTERNAL_API_KEY"); v != "" {
		cfg.Auth.InternalAPIKey = v
	}

	// Notification / warehouse overrides
	if v := os.Getenv("NOTIFY_FROM_ADDRESS"); v != "" {
		cfg.Notify.FromAddress = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	return cfg, nil
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envFloat(name string) float64 {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
