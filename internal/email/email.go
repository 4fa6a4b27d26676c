// Package email delivers reminder mail. Local development logs instead
// of sending so no API key is needed to run the stack.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type logSender struct {
	logger *slog.Logger
}

func (s *logSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("reminder email (not sent, local env)",
		"to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}

type resendSender struct {
	client *resend.Client
	from   string
}

func (s *resendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

// NewSender picks the delivery backend by environment: local logs,
// everything else goes through Resend.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &logSender{logger: logger.With("component", "email")}
	}
	return &resendSender{client: resend.NewClient(apiKey), from: from}
}
