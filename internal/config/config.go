package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mailtmpl/internal/auth"
	"github.com/mailtmpl/internal/model"
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Database
	DatabaseURL string
	RedisURL    string // optional, enables cross-instance events

	// Security
	SettingsEncryptionKey string
	SecureCookies         bool
	SeedAdminEmail        string
	SeedAdminPassword     string

	// SMTP defaults, copied into the settings document on first start
	SMTPHost           string
	SMTPPort           int
	SMTPUser           string
	SMTPPass           string
	SMTPFromEmail      string
	SMTPFromName       string
	MarketingFromEmail string
	CompanyName        string
	SupportEmail       string

	// Mail queue
	MailSendInterval  time.Duration
	MailQueueSize     int
	MailMaxRetry      int
	TestSendPerMinute int

	// Content assist
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs reads .env, the environment and then the command line flags in
// args, which win over the environment.
func LoadArgs(args []string) (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	fs := flag.NewFlagSet("mailtmpl", flag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", getEnv("PORT", "8080"), "Server port")
	fs.StringVar(&cfg.Env, "env", getEnv("ENV", "development"), "Environment (development, production)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection string")

	cfg.SettingsEncryptionKey = mustEnv("SETTINGS_ENCRYPTION_KEY")
	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.SecureCookies = getEnv("SECURE_COOKIES", "false") == "true"
	cfg.SeedAdminEmail = getEnv("SEED_ADMIN_EMAIL", "")
	cfg.SeedAdminPassword = getEnv("SEED_ADMIN_PASSWORD", "")

	cfg.SMTPHost = getEnv("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = getEnv("SMTP_USER", "")
	cfg.SMTPPass = getEnv("SMTP_PASS", "")
	cfg.SMTPFromEmail = getEnv("SMTP_FROM_EMAIL", "")
	cfg.SMTPFromName = getEnv("SMTP_FROM_NAME", "")
	cfg.MarketingFromEmail = getEnv("SMTP_MARKETING_FROM_EMAIL", "")
	cfg.CompanyName = getEnv("COMPANY_NAME", "")
	cfg.SupportEmail = getEnv("SUPPORT_EMAIL", "")

	cfg.MailSendInterval = getEnvDuration("MAIL_SEND_INTERVAL", time.Second)
	cfg.MailQueueSize = getEnvInt("MAIL_QUEUE_SIZE", 100)
	cfg.MailMaxRetry = getEnvInt("MAIL_MAX_RETRY", 3)
	cfg.TestSendPerMinute = getEnvInt("TEST_SEND_PER_MINUTE", 6)

	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnv("OPENAI_MODEL", "")
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", "")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.SettingsEncryptionKey) < 32 {
		return fmt.Errorf("SETTINGS_ENCRYPTION_KEY must be at least 32 characters")
	}

	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be development or production, got %q", c.Env)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be a number, got %q", c.Port)
	}

	if c.SeedAdminEmail != "" && len(c.SeedAdminPassword) < auth.MinPasswordLength {
		return fmt.Errorf("SEED_ADMIN_PASSWORD must be at least %d characters", auth.MinPasswordLength)
	}

	if c.MailQueueSize < 1 || c.TestSendPerMinute < 1 || c.MailSendInterval <= 0 {
		return fmt.Errorf("MAIL_QUEUE_SIZE, TEST_SEND_PER_MINUTE and MAIL_SEND_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// DefaultSettings seeds the stored settings document the first time it is
// loaded.
func (c *Config) DefaultSettings() model.AppSettings {
	s := model.AppSettings{
		SMTPHost:     c.SMTPHost,
		SMTPPort:     c.SMTPPort,
		SMTPUser:     c.SMTPUser,
		SMTPPass:     c.SMTPPass,
		CompanyName:  c.CompanyName,
		SupportEmail: c.SupportEmail,
		Senders: map[model.FromAddressType]model.Sender{
			model.FromTransactional: {Name: c.SMTPFromName, Address: c.SMTPFromEmail},
		},
	}
	if c.MarketingFromEmail != "" {
		s.Senders[model.FromMarketing] = model.Sender{Name: c.SMTPFromName, Address: c.MarketingFromEmail}
	}
	return s
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		slog.Warn("ignoring invalid integer", "key", key, "value", v)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
	}
	return fallback
}

func mustEnv(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("missing required environment variable", "key", key)
	os.Exit(1)
	return ""
}
