package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Supported drivers and providers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"

	ProviderTwilio   = "twilio"
	ProviderWhatsApp = "whatsapp"
)

// Config holds runtime settings read from the environment.
type Config struct {
	AppEnv           string `env:"APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"text"`
	HTTPListenAddr   string `env:"HTTP_LISTEN_ADDR" envDefault:":3000"`
	PublicBasePath   string `env:"PUBLIC_BASE_PATH"`
	PublicBaseURL    string `env:"PUBLIC_BASE_URL"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"papas_bot"`

	DBDriver          string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL       string `env:"DATABASE_URL"`
	DatabaseSchema    string `env:"DATABASE_SCHEMA" envDefault:"public"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"papas.db"`
	SchemaAutoUpgrade bool   `env:"SCHEMA_AUTO_UPGRADE" envDefault:"true"`

	SessionStore  string        `env:"SESSION_STORE" envDefault:"memory"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"0s"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	RedisTLS      bool          `env:"REDIS_TLS" envDefault:"false"`

	MessagingProvider       string        `env:"MESSAGING_PROVIDER" envDefault:"twilio"`
	TwilioAccountSID        string        `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken         string        `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber        string        `env:"TWILIO_WHATSAPP_NUMBER"`
	TwilioBaseURL           string        `env:"TWILIO_BASE_URL" envDefault:"https://api.twilio.com"`
	TwilioTimeout           time.Duration `env:"TWILIO_TIMEOUT" envDefault:"15s"`
	TwilioValidateSignature bool          `env:"TWILIO_VALIDATE_SIGNATURE" envDefault:"false"`

	WhatsAppStorePath string `env:"WHATSAPP_STORE_PATH" envDefault:"whatsapp.db"`
	WhatsAppLogLevel  string `env:"WHATSAPP_LOG_LEVEL" envDefault:"INFO"`

	PaymentBusinessName string `env:"PAYMENT_BUSINESS_NAME"`
	PaymentBank         string `env:"PAYMENT_BANK"`
	PaymentAccount      string `env:"PAYMENT_ACCOUNT"`
	PaymentHolder       string `env:"PAYMENT_HOLDER"`
	PaymentRUT          string `env:"PAYMENT_RUT"`
	PaymentEmail        string `env:"PAYMENT_EMAIL"`

	OpTimeout time.Duration `env:"OP_TIMEOUT" envDefault:"10s"`
}

// Load reads the configuration from environment variables, applying defaults
// and validating the settings the selected driver and provider require.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalize trims free-form values and lowercases the selector fields.
func (c *Config) normalize() {
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	c.MessagingProvider = strings.ToLower(strings.TrimSpace(c.MessagingProvider))
	c.PublicBasePath = strings.TrimSpace(c.PublicBasePath)
	c.PublicBaseURL = strings.TrimSpace(c.PublicBaseURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.TwilioAccountSID = strings.TrimSpace(c.TwilioAccountSID)
	c.TwilioAuthToken = strings.TrimSpace(c.TwilioAuthToken)
	c.TwilioFromNumber = strings.TrimSpace(c.TwilioFromNumber)
}

func (c Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	default:
		return fmt.Errorf("unsupported SESSION_STORE %q", c.SessionStore)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative")
	}

	switch c.MessagingProvider {
	case ProviderTwilio:
		if c.TwilioAccountSID == "" || c.TwilioAuthToken == "" || c.TwilioFromNumber == "" {
			return fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_WHATSAPP_NUMBER are required for the twilio provider")
		}
	case ProviderWhatsApp:
		if strings.TrimSpace(c.WhatsAppStorePath) == "" {
			return fmt.Errorf("WHATSAPP_STORE_PATH is required for the whatsapp provider")
		}
	default:
		return fmt.Errorf("unsupported MESSAGING_PROVIDER %q", c.MessagingProvider)
	}

	if c.OpTimeout <= 0 {
		return fmt.Errorf("OP_TIMEOUT must be positive")
	}
	return nil
}
