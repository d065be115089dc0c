package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppPort  string
	LogLevel string

	MySQLHost   string
	MySQLPort   string
	MySQLDB     string
	MySQLUser   string
	MySQLPass   string
	AutoMigrate bool

	RedisAddr string
	RedisDB   int

	IdempTTLSecs int
	// ulule/limiter format, e.g. "20-M"
	ApprovalRate string

	JWTSecret string
	VaultKey  string

	// Provider gateway
	ProviderBaseURL       string
	ProviderAPIKey        string
	ProviderTokenURL      string
	ProviderClientID      string
	ProviderClientSecret  string
	ProviderSandbox       bool
	SubmitTimeout         time.Duration
	SubmitMaxRetries      int
	MaxSubmissionAttempts int

	// NACHA originating bank
	ODFIRouting string
	ODFIName    string

	// "redis" fans changes out across instances, "memory" stays in process
	ChangesFanout string

	PubSubProjectID string
	PubSubTopic     string
	// recipient-only deliveries such as 2FA codes; empty disables them
	PubSubDirectTopic string
	GCPCredentialJSON string
	NachaBucket       string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MYSQL_HOST", "mysql")
	v.SetDefault("MYSQL_PORT", "3306")
	v.SetDefault("MYSQL_DB", "halonet")
	v.SetDefault("MYSQL_USER", "halonet")
	v.SetDefault("MYSQL_PASS", "halonet")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_TTL_SECONDS", 300)
	v.SetDefault("APPROVAL_RATE_LIMIT", "20-M")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("VAULT_KEY", "")
	v.SetDefault("PROVIDER_BASE_URL", "")
	v.SetDefault("PROVIDER_API_KEY", "")
	v.SetDefault("PROVIDER_TOKEN_URL", "")
	v.SetDefault("PROVIDER_CLIENT_ID", "")
	v.SetDefault("PROVIDER_CLIENT_SECRET", "")
	v.SetDefault("PROVIDER_SANDBOX", true)
	v.SetDefault("SUBMIT_TIMEOUT_SECONDS", 30)
	v.SetDefault("SUBMIT_MAX_RETRIES", 3)
	v.SetDefault("MAX_SUBMISSION_ATTEMPTS", 5)
	v.SetDefault("ODFI_ROUTING", "")
	v.SetDefault("ODFI_NAME", "")
	v.SetDefault("CHANGES_FANOUT", "redis")
	v.SetDefault("PUBSUB_PROJECT_ID", "")
	v.SetDefault("PUBSUB_TOPIC", "halonet-payment-events")
	v.SetDefault("PUBSUB_DIRECT_TOPIC", "halonet-direct-deliveries")
	v.SetDefault("GCP_CREDENTIALS_JSON", "")
	v.SetDefault("NACHA_ARCHIVE_BUCKET", "")
	v.AutomaticEnv()

	return &Config{
		AppPort:               v.GetString("APP_PORT"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		MySQLHost:             v.GetString("MYSQL_HOST"),
		MySQLPort:             v.GetString("MYSQL_PORT"),
		MySQLDB:               v.GetString("MYSQL_DB"),
		MySQLUser:             v.GetString("MYSQL_USER"),
		MySQLPass:             v.GetString("MYSQL_PASS"),
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisDB:               v.GetInt("REDIS_DB"),
		IdempTTLSecs:          v.GetInt("IDEMPOTENCY_TTL_SECONDS"),
		ApprovalRate:          v.GetString("APPROVAL_RATE_LIMIT"),
		JWTSecret:             v.GetString("JWT_SECRET"),
		VaultKey:              v.GetString("VAULT_KEY"),
		ProviderBaseURL:       v.GetString("PROVIDER_BASE_URL"),
		ProviderAPIKey:        v.GetString("PROVIDER_API_KEY"),
		ProviderTokenURL:      v.GetString("PROVIDER_TOKEN_URL"),
		ProviderClientID:      v.GetString("PROVIDER_CLIENT_ID"),
		ProviderClientSecret:  v.GetString("PROVIDER_CLIENT_SECRET"),
		ProviderSandbox:       v.GetBool("PROVIDER_SANDBOX"),
		SubmitTimeout:         time.Duration(v.GetInt("SUBMIT_TIMEOUT_SECONDS")) * time.Second,
		SubmitMaxRetries:      v.GetInt("SUBMIT_MAX_RETRIES"),
		MaxSubmissionAttempts: v.GetInt("MAX_SUBMISSION_ATTEMPTS"),
		ODFIRouting:           v.GetString("ODFI_ROUTING"),
		ODFIName:              v.GetString("ODFI_NAME"),
		ChangesFanout:         v.GetString("CHANGES_FANOUT"),
		PubSubProjectID:       v.GetString("PUBSUB_PROJECT_ID"),
		PubSubTopic:           v.GetString("PUBSUB_TOPIC"),
		PubSubDirectTopic:     v.GetString("PUBSUB_DIRECT_TOPIC"),
		GCPCredentialJSON:     v.GetString("GCP_CREDENTIALS_JSON"),
		NachaBucket:           v.GetString("NACHA_ARCHIVE_BUCKET"),
	}
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if len(c.VaultKey) < 16 {
		return errors.New("VAULT_KEY must be at least 16 characters")
	}
	if !c.ProviderSandbox && c.ProviderBaseURL == "" {
		return errors.New("PROVIDER_BASE_URL is required unless PROVIDER_SANDBOX=true")
	}
	if c.ProviderTokenURL != "" && c.ProviderClientID == "" {
		return errors.New("PROVIDER_CLIENT_ID is required with PROVIDER_TOKEN_URL")
	}
	if len(c.ODFIRouting) != 9 {
		return errors.New("ODFI_ROUTING must be a 9-digit routing number")
	}
	if c.ChangesFanout != "redis" && c.ChangesFanout != "memory" {
		return fmt.Errorf("CHANGES_FANOUT must be redis or memory, got %q", c.ChangesFanout)
	}
	if c.SubmitTimeout <= 0 || c.SubmitMaxRetries < 0 || c.MaxSubmissionAttempts < 1 {
		return errors.New("invalid submission timeout/retry settings")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
