package mailer

import (
	"context"

	"advisor-backend/internal/shared/telemetry"
)

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender writes outgoing mail to the telemetry log instead of
// delivering it. Used in dev and in tests.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	telemetry.Info("mailer.send", map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	return nil
}

var _ Sender = LogSender{}
