package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

const (
	AuditBackendPostgres = "postgres"
	AuditBackendMongo    = "mongo"
)

type Config struct {
	AuditBackend    string `env:"AUDIT_BACKEND,default=postgres"`
	DatabaseDSN     string `env:"DATABASE_DSN"`
	MongoURI        string `env:"MONGO_URI"`
	MongoDatabase   string `env:"MONGO_DATABASE,default=notifications"`
	MongoCollection string `env:"MONGO_COLLECTION,default=notification_logs"`

	RabbitMQURL       string `env:"RABBITMQ_URL,required=true"`
	NotificationQueue string `env:"NOTIFICATION_QUEUE,default=notifications"`
	PrefetchCount     int    `env:"PREFETCH_COUNT,default=1"`
	ConsumerEnabled   bool   `env:"CONSUMER_ENABLED,default=true"`

	RedisURL        string `env:"REDIS_URL,required=true"`
	RateLimitPerSec int    `env:"RATE_LIMIT_PER_SEC,default=100"`

	EmailAPIURL         string `env:"EMAIL_API_URL,default=https://smtp.maileroo.com/api/v2/emails"`
	EmailAPIKey         string `env:"EMAIL_API_KEY"`
	EmailSenderAddress  string `env:"EMAIL_SENDER_ADDRESS"`
	EmailSenderName     string `env:"EMAIL_SENDER_NAME,default=Notifications"`
	EmailDefaultSubject string `env:"EMAIL_DEFAULT_SUBJECT,default=Notification"`

	WhatsAppAPIURL   string `env:"WHATSAPP_API_URL"`
	WhatsAppAPIToken string `env:"WHATSAPP_API_TOKEN"`
	WhatsAppMockMode bool   `env:"WHATSAPP_MOCK_MODE,default=true"`

	ProviderTimeoutSec     int `env:"PROVIDER_TIMEOUT_SEC,default=10"`
	DispatchMaxAttempts    int `env:"DISPATCH_MAX_ATTEMPTS,default=1"`
	DispatchRetryBaseDelay int `env:"DISPATCH_RETRY_BASE_DELAY_MS,default=1000"`
	DispatchRetryMaxDelay  int `env:"DISPATCH_RETRY_MAX_DELAY_MS,default=30000"`
	AuditRetentionDays     int `env:"AUDIT_RETENTION_DAYS,default=0"`
	RetentionSweepInterval int `env:"RETENTION_SWEEP_INTERVAL_SEC,default=3600"`
	APIPort                int `env:"API_PORT,default=8080"`
	ShutdownTimeoutSec     int `env:"SHUTDOWN_TIMEOUT_SEC,default=15"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.AuditBackend = strings.ToLower(strings.TrimSpace(c.AuditBackend))
	switch c.AuditBackend {
	case AuditBackendPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required for audit backend %q", c.AuditBackend)
		}
	case AuditBackendMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			return fmt.Errorf("MONGO_URI is required for audit backend %q", c.AuditBackend)
		}
	default:
		return fmt.Errorf("unsupported audit backend %q", c.AuditBackend)
	}

	if c.PrefetchCount < 1 {
		c.PrefetchCount = 1
	}
	if c.DispatchMaxAttempts < 1 {
		c.DispatchMaxAttempts = 1
	}
	return nil
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.DispatchRetryBaseDelay) * time.Millisecond
}

func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.DispatchRetryMaxDelay) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) RetentionInterval() time.Duration {
	return time.Duration(c.RetentionSweepInterval) * time.Second
}

// RetentionPeriod is zero when retention is disabled.
func (c *Config) RetentionPeriod() time.Duration {
	if c.AuditRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}
