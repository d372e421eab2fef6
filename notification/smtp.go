package notification

import (
	"context"
	"crypto/tls"
	"fmt"

	"checkout-svc/config"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var serviceHosts = map[string]string{
	"gmail":   "smtp.gmail.com",
	"outlook": "smtp-mail.outlook.com",
	"hotmail": "smtp-mail.outlook.com",
	"yahoo":   "smtp.mail.yahoo.com",
	"zoho":    "smtp.zoho.com",
}

// SMTPSettings is the resolved connection a transport dials.
type SMTPSettings struct {
	Host          string
	Port          int
	Username      string
	Password      string
	ImplicitTLS   bool
	SkipTLSVerify bool
}

// ResolveSMTP picks the SMTP endpoint for the configured mode: sendgrid or
// mailgun with an API key, a custom host, or a well-known service name.
func ResolveSMTP(cfg config.Email) (SMTPSettings, error) {
	switch {
	case cfg.APIKey != "" && cfg.Service == "sendgrid":
		return SMTPSettings{Host: "smtp.sendgrid.net", Port: 587, Username: "apikey", Password: cfg.APIKey}, nil
	case cfg.APIKey != "" && cfg.Service == "mailgun":
		return SMTPSettings{
			Host:     "smtp.mailgun.org",
			Port:     587,
			Username: firstNonEmpty(cfg.User, cfg.MailgunSMTPUser),
			Password: firstNonEmpty(cfg.APIKey, cfg.MailgunSMTPPass),
		}, nil
	case cfg.SMTPHost != "":
		return SMTPSettings{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.User,
			Password:      firstNonEmpty(cfg.Pass, cfg.APIKey),
			ImplicitTLS:   cfg.SMTPSecure,
			SkipTLSVerify: !cfg.SMTPTLSReject,
		}, nil
	}

	host, ok := serviceHosts[cfg.Service]
	if !ok {
		return SMTPSettings{}, fmt.Errorf("unknown email service %q", cfg.Service)
	}
	return SMTPSettings{Host: host, Port: 587, Username: cfg.User, Password: cfg.Pass}, nil
}

type SMTPTransport struct {
	settings SMTPSettings
	cfg      config.Email
	logger   *zap.Logger
}

func NewSMTPTransport(cfg config.Email, logger *zap.Logger) (*SMTPTransport, error) {
	settings, err := ResolveSMTP(cfg)
	if err != nil {
		return nil, err
	}
	return &SMTPTransport{settings: settings, cfg: cfg, logger: logger}, nil
}

// NewTransport returns an SMTP transport when credentials are present and a
// LogTransport otherwise.
func NewTransport(cfg config.Email, logger *zap.Logger) (Transport, error) {
	if !cfg.Configured() {
		logger.Warn("Email service not configured. Emails will be logged, not sent.")
		return NewLogTransport(logger), nil
	}
	return NewSMTPTransport(cfg, logger)
}

func (t *SMTPTransport) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(t.settings.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.settings.Username),
		mail.WithPassword(t.settings.Password),
	}
	if t.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(t.cfg.Timeout))
	}
	if t.settings.ImplicitTLS {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if t.settings.SkipTLSVerify {
		opts = append(opts, mail.WithTLSConfig(&tls.Config{
			ServerName:         t.settings.Host,
			InsecureSkipVerify: true,
		}))
	}

	c, err := mail.NewClient(t.settings.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}
	return c, nil
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	c, err := t.client()
	if err != nil {
		return err
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Verify dials the SMTP server once so misconfiguration shows up at startup.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	c, err := t.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s:%d: %w", t.settings.Host, t.settings.Port, err)
	}
	return c.Close()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
