package mailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
)

// MailerSendTransport delivers through the MailerSend API.
type MailerSendTransport struct {
	client *mailersend.Mailersend
	from   mailersend.From
}

func NewMailerSendTransport(apiKey, fromName, fromEmail string) *MailerSendTransport {
	t := &MailerSendTransport{from: mailersend.From{Name: fromName, Email: fromEmail}}
	if apiKey != "" && fromEmail != "" {
		t.client = mailersend.NewMailersend(apiKey)
	}
	return t
}

func (t *MailerSendTransport) Deliver(ctx context.Context, msg Message) error {
	if t.client == nil {
		return errors.New("mailersend: missing MAILERSEND_API_KEY or SMTP_FROM")
	}
	if msg.To == "" {
		return ErrNoRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	email := t.client.Email.NewMessage()
	email.SetFrom(t.from)
	email.SetRecipients([]mailersend.Recipient{{Name: msg.ToName, Email: msg.To}})
	email.SetSubject(msg.Subject)
	if strings.TrimSpace(msg.Text) != "" {
		email.SetText(msg.Text)
	}
	if strings.TrimSpace(msg.HTML) != "" {
		email.SetHTML(msg.HTML)
	}

	res, err := t.client.Email.Send(ctx, email)
	if err != nil {
		return fmt.Errorf("mailersend: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("mailersend: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
