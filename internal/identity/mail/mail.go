// Package mail delivers transactional email for the identity service. The
// only message today is the one-time login code, but the Sender interface is
// deliberately generic so password-reset and confirmation flows can reuse it.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Message is a plain-text email ready for delivery.
type Message struct {
	To       string
	Subject  string
	TextBody string
}

// Sender delivers a message to a single recipient.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// OTPMessage builds the login-code email.
func OTPMessage(to, fullName, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: "Your one-time login code",
		TextBody: fmt.Sprintf(
			"Hello %s,\n\nYour one-time login code is: %s\n\nIt expires in %d minutes. If you did not try to sign in, you can ignore this message.\n",
			fullName, code, int(ttl.Minutes()),
		),
	}
}

// SMTPConfig holds the connection settings for the outbound relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers mail over SMTP. A fresh connection per message keeps
// the implementation simple; identity email volume is low.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPSender{cfg: cfg}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.TextBody)

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used in
// development when no SMTP relay is configured.
type LogSender struct {
	Log *slog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info("email delivery skipped, no smtp relay configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.TextBody),
	)
	return nil
}
