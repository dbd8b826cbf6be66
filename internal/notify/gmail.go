package notify

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"verdant/internal/events"
)

// GmailConfig holds the SMTP account used by the gmail backend.
type GmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	To       string
}

// GmailBackend delivers alerts by SMTP with mandatory STARTTLS.
type GmailBackend struct {
	cfg GmailConfig
}

// NewGmailBackend creates the gmail backend.
func NewGmailBackend(cfg GmailConfig) *GmailBackend {
	return &GmailBackend{cfg: cfg}
}

func (g *GmailBackend) Name() string { return "gmail" }

func (g *GmailBackend) Send(ctx context.Context, alert events.AlertEvent) error {
	msg := gomail.NewMsg()
	if err := msg.From(g.cfg.User); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(g.cfg.To); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(Subject(alert))
	msg.SetBodyString(gomail.TypeTextPlain, Body(alert))

	client, err := gomail.NewClient(g.cfg.Host,
		gomail.WithPort(g.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(g.cfg.User),
		gomail.WithPassword(g.cfg.Password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		// SMTP failures here are almost always transient (connection,
		// greylisting); auth problems surface at config validation.
		return Retryable(fmt.Errorf("failed to send mail: %w", err))
	}
	return nil
}
