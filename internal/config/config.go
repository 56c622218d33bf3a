package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

const (
	EmailProviderEmailJS  = "emailjs"
	EmailProviderSendGrid = "sendgrid"

	SMSGatewayTwilio    = "twilio"
	SMSGatewaySendchamp = "sendchamp"
)

// Config drives the core API process.
type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	APIPort     int    `env:"API_PORT,default=8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:5173"`

	Institution      string `env:"INSTITUTION_NAME,default=Moshood Abiola Polytechnic"`
	InstitutionShort string `env:"INSTITUTION_SHORT,default=MAP"`
	FromName         string `env:"EMAIL_FROM_NAME,default=Academic Affairs Department"`
	FromEmail        string `env:"EMAIL_FROM_ADDRESS"`

	EmailProvider     string `env:"EMAIL_PROVIDER,default=emailjs"`
	EmailJSEndpoint   string `env:"EMAILJS_ENDPOINT"`
	EmailJSServiceID  string `env:"EMAILJS_SERVICE_ID"`
	EmailJSTemplateID string `env:"EMAILJS_TEMPLATE_ID"`
	EmailJSPublicKey  string `env:"EMAILJS_PUBLIC_KEY"`
	EmailJSPrivateKey string `env:"EMAILJS_PRIVATE_KEY"`
	SendGridAPIKey    string `env:"SENDGRID_API_KEY"`
	SendGridHost      string `env:"SENDGRID_HOST"`

	SMSServiceURL string `env:"SMS_SERVICE_URL,default=http://localhost:3001"`

	EmailConcurrency  int           `env:"EMAIL_CONCURRENCY,default=8"`
	EmailRetryBase    time.Duration `env:"EMAIL_RETRY_BASE,default=1s"`
	EmailSendDelay    time.Duration `env:"EMAIL_SEND_DELAY,default=100ms"`
	RenotifyPublished bool          `env:"RENOTIFY_PUBLISHED,default=false"`
	PublishLockTTL    time.Duration `env:"PUBLISH_LOCK_TTL,default=10m"`
	AutoPublishCron   string        `env:"AUTO_PUBLISH_CRON"`
	APIRateLimit      int           `env:"API_RATE_LIMIT,default=100"`
	APIRateWindow     time.Duration `env:"API_RATE_WINDOW,default=15m"`

	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
}

// SMSConfig drives the SMS side-service process.
type SMSConfig struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`
	Port        int    `env:"SMS_PORT,default=3001"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=json"`
	FrontendURL string `env:"FRONTEND_URL,default=http://localhost:5173"`

	Institution      string `env:"INSTITUTION_NAME,default=Moshood Abiola Polytechnic"`
	InstitutionShort string `env:"INSTITUTION_SHORT,default=MAP"`

	Gateway           string `env:"SMS_GATEWAY,default=twilio"`
	TwilioBaseURL     string `env:"TWILIO_BASE_URL"`
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
	TwilioCallbackURL string `env:"TWILIO_STATUS_CALLBACK_URL"`
	SendchampEndpoint string `env:"SENDCHAMP_ENDPOINT"`
	SendchampAPIKey   string `env:"SENDCHAMP_API_KEY"`
	SendchampSender   string `env:"SENDCHAMP_SENDER_NAME,default=EduNotify"`

	SendDelay       time.Duration `env:"SMS_SEND_DELAY,default=1s"`
	RetryBase       time.Duration `env:"SMS_RETRY_BASE,default=1s"`
	GatewayRateSec  int           `env:"SMS_GATEWAY_RATE_PER_SEC,default=5"`
	APIRateLimit    int           `env:"API_RATE_LIMIT,default=100"`
	APIRateWindow   time.Duration `env:"API_RATE_WINDOW,default=15m"`
	SMSRateLimit    int           `env:"SMS_RATE_LIMIT,default=10"`
	SMSRateWindow   time.Duration `env:"SMS_RATE_WINDOW,default=1m"`
	MaxBatchStudent int           `env:"SMS_MAX_BATCH,default=100"`
}

// Load reads Config from the environment after applying an optional .env file.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSMS reads SMSConfig from the environment after applying an optional .env file.
func LoadSMS() (*SMSConfig, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	var cfg SMSConfig
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load sms config: %w", err)
	}
	cfg.Gateway = strings.ToLower(strings.TrimSpace(cfg.Gateway))
	switch cfg.Gateway {
	case SMSGatewayTwilio, SMSGatewaySendchamp:
	default:
		return nil, fmt.Errorf("failed to load sms config: unsupported SMS_GATEWAY %q", cfg.Gateway)
	}
	if cfg.MaxBatchStudent <= 0 {
		cfg.MaxBatchStudent = 100
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.EmailProvider = strings.ToLower(strings.TrimSpace(c.EmailProvider))
	switch c.EmailProvider {
	case EmailProviderEmailJS, EmailProviderSendGrid:
	default:
		return fmt.Errorf("failed to load config: unsupported EMAIL_PROVIDER %q", c.EmailProvider)
	}
	if c.EmailConcurrency < 1 {
		c.EmailConcurrency = 1
	}
	return nil
}

// loadDotEnv applies ENV_FILE (default .env) without overriding variables already set.
func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
