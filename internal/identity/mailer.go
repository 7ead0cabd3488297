package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends the e-mail verification link.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers mail through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Verify your TutorLink e-mail")
	msg.SetBody("text/plain", "Welcome to TutorLink!\n\nConfirm your e-mail address by opening this link:\n"+link+"\n")
	msg.AddAlternative("text/html", fmt.Sprintf(
		`<p>Welcome to TutorLink!</p><p><a href="%s">Confirm your e-mail address</a></p>`, link))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// LogMailer writes the link to the log instead of sending it. Used when no
// SMTP relay is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerification(_ context.Context, to, link string) error {
	m.logger.Info("Verification link", zap.String("to", to), zap.String("link", link))
	return nil
}
