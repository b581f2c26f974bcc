package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"time"

	mail "github.com/go-mail/mail"
)

// Message is an outgoing email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	// SSL selects implicit TLS; otherwise STARTTLS is negotiated when offered.
	SSL bool
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	config EmailConfig
	dialer *mail.Dialer
}

func NewSMTPSender(config EmailConfig) *SMTPSender {
	d := mail.NewDialer(config.Host, config.Port, config.User, config.Password)
	d.TLSConfig = &tls.Config{ServerName: config.Host}
	d.SSL = config.SSL
	d.Timeout = 10 * time.Second
	return &SMTPSender{config: config, dialer: d}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	if s.config.FromName != "" {
		m.SetAddressHeader("From", s.config.From, s.config.FromName)
	} else {
		m.SetHeader("From", s.config.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)

	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender logs messages instead of sending them. Used when no SMTP
// relay is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("email not sent, smtp disabled", "to", msg.To, "subject", msg.Subject, "body", msg.TextBody)
	return nil
}

// EmailService renders and sends account mails.
type EmailService struct {
	sender Sender
	logger *slog.Logger
}

func NewEmailService(sender Sender, logger *slog.Logger) *EmailService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailService{sender: sender, logger: logger}
}

func (s *EmailService) SendEmailConfirmation(ctx context.Context, to, confirmURL string, validFor time.Duration) error {
	link := html.EscapeString(confirmURL)
	return s.send(ctx, Message{
		To:      to,
		Subject: "Confirm your email address",
		HTMLBody: fmt.Sprintf(`<html><body>
		<h2>Confirm your email address</h2>
		<p>Please confirm that this is your email address.</p>
		<p><a href="%s">Click here to confirm your email</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in %d days.</p>
	</body></html>`, link, link, days(validFor)),
		TextBody: fmt.Sprintf("Confirm your email address by visiting %s\n\nThis link will expire in %d days.\n", confirmURL, days(validFor)),
	})
}

func (s *EmailService) SendPasswordReset(ctx context.Context, to, username, resetURL string, validFor time.Duration) error {
	link := html.EscapeString(resetURL)
	return s.send(ctx, Message{
		To:      to,
		Subject: "Reset your password",
		HTMLBody: fmt.Sprintf(`<html><body>
		<h2>Reset your password</h2>
		<p>A password reset has been requested for the account %s.</p>
		<p><a href="%s">Click here to reset your password</a></p>
		<p>Or copy this link to your browser: %s</p>
		<p>This link will expire in %d days.</p>
		<p>If you did not request this password reset, please ignore this email.</p>
	</body></html>`, html.EscapeString(username), link, link, days(validFor)),
		TextBody: fmt.Sprintf("Reset the password of %s by visiting %s\n\nThis link will expire in %d days.\n", username, resetURL, days(validFor)),
	})
}

func (s *EmailService) send(ctx context.Context, msg Message) error {
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send email", "error", err, "subject", msg.Subject)
		return err
	}
	return nil
}

func days(d time.Duration) int {
	n := int(d / (24 * time.Hour))
	if n < 1 {
		return 1
	}
	return n
}
