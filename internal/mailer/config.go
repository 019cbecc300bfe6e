package mailer

import (
	"strings"

	"github.com/cockroachdb/errors"

	"outreach-pipeline/internal/config"
)

// ErrNotConfigured is returned when sender credentials are missing.
var ErrNotConfigured = errors.New("mail transport is not configured")

// Config is the subset of runtime configuration the mailer needs.
type Config struct {
	Host          string
	Port          int
	Sender        string
	Password      string
	PortfolioLink string
	TemplateFile  string
}

func FromConfig(cfg config.Config) Config {
	return Config{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Sender:        cfg.SenderEmail,
		Password:      cfg.SenderPassword,
		PortfolioLink: cfg.PortfolioLink,
		TemplateFile:  cfg.TemplateFile,
	}
}

// Validate reports a wrapped ErrNotConfigured naming the first missing setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Sender) == "":
		return errors.Wrap(ErrNotConfigured, "OUTREACH_SENDER_EMAIL is not set")
	case c.Password == "":
		return errors.Wrap(ErrNotConfigured, "OUTREACH_SENDER_PASSWORD is not set")
	case c.Host == "" || c.Port <= 0:
		return errors.Wrap(ErrNotConfigured, "OUTREACH_SMTP_HOST/OUTREACH_SMTP_PORT are not set")
	}
	return nil
}
