package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/ticketkart/internal/notify"
	"github.com/xenking/ticketkart/internal/payu"
)

// Config holds the complete application configuration, loadable from
// environment variables (TICKET_ prefix), flags, or YAML config files. It is
// constructed once at startup and passed by reference into the services;
// nothing reads the environment during request handling.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (TICKET_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (TICKET_API_KEY_PEPPER)" flag:"api-key-pepper"`

	// PublicBaseURL is this service's externally reachable base URL, used to
	// construct the gateway's success/failure callback URLs.
	PublicBaseURL string `usage:"Externally reachable base URL of this service" flag:"public-base-url"`
	// FrontendBaseURL is where the browser redirect lands after payment.
	FrontendBaseURL string `usage:"Frontend base URL for payment outcome pages" flag:"frontend-base-url"`

	PayU      PayUConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// PayUConfig carries the merchant credentials and gateway endpoint.
type PayUConfig struct {
	Key        string `usage:"PayU merchant key" flag:"payu-key"`
	Salt       string `usage:"PayU signing salt (shared secret)" flag:"payu-salt"`
	PaymentURL string `default:"https://secure.payu.in/_payment" usage:"PayU hosted checkout URL" flag:"payu-payment-url"`
	// AllowUnverified downgrades signature mismatches on inbound
	// notifications from rejection to a logged warning. Debugging aid only.
	AllowUnverified bool `default:"false" usage:"Accept notifications with invalid signatures (DANGEROUS)" flag:"payu-allow-unverified"`
}

// MailConfig controls the SMTP order-confirmation mailer. An empty host
// disables delivery; confirmations are then logged instead.
type MailConfig struct {
	Host     string `usage:"SMTP host (empty disables mail delivery)"`
	Port     int    `default:"587" usage:"SMTP port"`
	Username string `usage:"SMTP username"`
	Password string `usage:"SMTP password"`
	From     string `default:"tickets@localhost" usage:"Sender address for confirmations"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "TICKET",
		Files:     []string{"config.yaml", "/etc/ticketkart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set TICKET_DATABASE_URL or DATABASE_URL")
	}
	if cfg.FrontendBaseURL == "" {
		return nil, errors.New("frontend base URL is required: set TICKET_FRONTEND_BASE_URL")
	}

	return &cfg, nil
}

// Gateway returns the payu value object injected into the services.
func (c *Config) Gateway() payu.Config {
	return payu.Config{
		Key:        c.PayU.Key,
		Salt:       c.PayU.Salt,
		PaymentURL: c.PayU.PaymentURL,
	}
}

// Mailer returns the notify config value object.
func (c *Config) Mailer() notify.Config {
	return notify.Config{
		Host:     c.Mail.Host,
		Port:     c.Mail.Port,
		Username: c.Mail.Username,
		Password: c.Mail.Password,
		From:     c.Mail.From,
	}
}

// RedirectURL is the gateway-facing callback endpoint, used for both the
// success and failure URL of a payment request.
func (c *Config) RedirectURL() string {
	return strings.TrimSuffix(c.PublicBaseURL, "/") + "/api/payment/redirect"
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's TICKET_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://" + c.Addr
	}
}
