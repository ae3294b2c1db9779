package mailer

import (
	"context"

	"github.com/diagnosis/visitorgate/pkg/logger"
)

// DevTransport writes e-mails to the log instead of sending them.
type DevTransport struct{}

func (DevTransport) Deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	logger.InfoContext(ctx, "[DEV MAIL]",
		"to", msg.To,
		"name", msg.ToName,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
