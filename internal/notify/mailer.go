package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrMailerNotConfigured is returned when no SendGrid key or sender is set.
var ErrMailerNotConfigured = errors.New("email service not configured (SENDGRID_API_KEY / FROM_EMAIL)")

// Mailer delivers a plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendGridMailer sends through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridMailer builds a mailer, or returns ErrMailerNotConfigured.
func NewSendGridMailer(apiKey, fromEmail string) (*SendGridMailer, error) {
	apiKey = strings.TrimSpace(apiKey)
	fromEmail = strings.TrimSpace(fromEmail)
	if apiKey == "" || fromEmail == "" {
		return nil, ErrMailerNotConfigured
	}
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Better Me", fromEmail),
	}, nil
}

// Send implements Mailer.
func (m *SendGridMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), body, "")
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid http %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// disabledMailer stands in when SendGrid is not configured.
type disabledMailer struct{}

func (disabledMailer) Send(context.Context, string, string, string) error {
	return ErrMailerNotConfigured
}
