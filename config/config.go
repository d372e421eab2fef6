package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"5000"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":50053"`

	RazorpayKeyID     string        `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string        `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayBaseURL   string        `envconfig:"RAZORPAY_BASE_URL" default:"https://api.razorpay.com"`
	GatewayTimeout    time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"15s"`

	BreakerMaxFailures  int           `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerResetTimeout time.Duration `envconfig:"BREAKER_RESET_TIMEOUT" default:"30s"`

	Email Email

	KafkaEnabled bool   `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBroker  string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"order_events"`

	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
}

// Email mirrors the transport modes the storefront has always supported:
// sendgrid / mailgun via API key, a custom SMTP host, or a named service (gmail).
type Email struct {
	Service         string        `envconfig:"EMAIL_SERVICE" default:"gmail"`
	APIKey          string        `envconfig:"EMAIL_API_KEY"`
	User            string        `envconfig:"EMAIL_USER"`
	Pass            string        `envconfig:"EMAIL_PASS"`
	From            string        `envconfig:"EMAIL_FROM"`
	SMTPHost        string        `envconfig:"EMAIL_SMTP_HOST"`
	SMTPPort        int           `envconfig:"EMAIL_SMTP_PORT" default:"587"`
	SMTPSecure      bool          `envconfig:"EMAIL_SMTP_SECURE" default:"false"`
	SMTPTLSReject   bool          `envconfig:"EMAIL_SMTP_TLS_REJECT" default:"false"`
	MailgunSMTPUser string        `envconfig:"MAILGUN_SMTP_USER"`
	MailgunSMTPPass string        `envconfig:"MAILGUN_SMTP_PASSWORD"`
	Timeout         time.Duration `envconfig:"EMAIL_TIMEOUT" default:"15s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) GatewayConfigured() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// Configured reports whether there is enough to authenticate against an SMTP server.
func (e Email) Configured() bool {
	if e.APIKey != "" && (e.Service == "sendgrid" || e.Service == "mailgun") {
		return true
	}
	return e.User != "" && (e.Pass != "" || e.APIKey != "")
}

// Sender is the From address; it falls back to the SMTP user like the storefront always did.
func (e Email) Sender() string {
	if e.From != "" {
		return e.From
	}
	return e.User
}
