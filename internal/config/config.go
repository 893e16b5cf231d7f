package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all gateway configuration loaded from environment variables.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Intent   IntentConfig
	IdP      IdPConfig
	Policy   PolicyConfig
	Server   ServerConfig
	Slack    SlackConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// IntentConfig holds intent-token settings.
type IntentConfig struct {
	Secret          string //nolint:gosec // G117: token signing secret config
	TTL             time.Duration
	ReplayRetention time.Duration
}

// IdPConfig holds the identity boundary settings: principals arrive as JWTs
// issued by an external identity provider and are verified, never issued,
// here.
type IdPConfig struct {
	Secret string //nolint:gosec // G117: IdP verification secret config
}

// PolicyConfig locates the rule file.
type PolicyConfig struct {
	File string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SlackConfig holds the security-notification settings. Both values empty
// means Slack is disabled and security events go to the log only.
type SlackConfig struct {
	BotToken        string
	SecurityChannel string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production, secrets
// (intent signing key, IdP key, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("WARDEN_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("WARDEN_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("WARDEN_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	intentTTL, err := getEnvDuration("WARDEN_INTENT_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	replayRetention, err := getEnvDuration("WARDEN_REPLAY_RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("WARDEN_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("WARDEN_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("WARDEN_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("WARDEN_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("WARDEN_DB_USER", "warden"),
			Password: getEnv("WARDEN_DB_PASSWORD", ""),
			DBName:   getEnv("WARDEN_DB_NAME", "warden_dev"),
			SSLMode:  getEnv("WARDEN_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("WARDEN_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("WARDEN_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Intent: IntentConfig{
			Secret:          getEnv("WARDEN_INTENT_SECRET", ""),
			TTL:             intentTTL,
			ReplayRetention: replayRetention,
		},
		IdP: IdPConfig{
			Secret: getEnv("WARDEN_IDP_SECRET", ""),
		},
		Policy: PolicyConfig{
			File: getEnv("WARDEN_POLICY_FILE", "policy.yaml"),
		},
		Server: ServerConfig{
			Addr:         getEnv("WARDEN_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Slack: SlackConfig{
			BotToken:        getEnv("WARDEN_SLACK_BOT_TOKEN", ""),
			SecurityChannel: getEnv("WARDEN_SLACK_SECURITY_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// Signing secrets are required (no insecure defaults).
	if c.Intent.Secret == "" {
		return errors.New("WARDEN_INTENT_SECRET is required")
	}
	if len(c.Intent.Secret) < 32 {
		return errors.New("WARDEN_INTENT_SECRET must be at least 32 characters")
	}
	if c.IdP.Secret == "" {
		return errors.New("WARDEN_IDP_SECRET is required")
	}
	if len(c.IdP.Secret) < 32 {
		return errors.New("WARDEN_IDP_SECRET must be at least 32 characters")
	}
	if c.Intent.Secret == c.IdP.Secret {
		return errors.New("WARDEN_INTENT_SECRET and WARDEN_IDP_SECRET must differ")
	}

	if c.Database.SSLMode == "disable" {
		log.Warn().Msg("WARDEN_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("WARDEN_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("WARDEN_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Intent.TTL <= 0 {
		return fmt.Errorf("WARDEN_INTENT_TTL must be positive, got %s", c.Intent.TTL)
	}
	if c.Intent.TTL > time.Hour {
		return fmt.Errorf("WARDEN_INTENT_TTL must be at most 1h (intent tokens are short-lived), got %s", c.Intent.TTL)
	}
	if c.Intent.ReplayRetention < c.Intent.TTL {
		return fmt.Errorf("WARDEN_REPLAY_RETENTION (%s) must be at least the intent TTL (%s)",
			c.Intent.ReplayRetention, c.Intent.TTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("WARDEN_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("WARDEN_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
