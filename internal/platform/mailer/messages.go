package mailer

import (
	"context"
	"fmt"
	"html"

	"github.com/diagnosis/visitorgate/internal/domain"
)

// VisitorMailer renders visitor e-mails and hands them to a Transport.
type VisitorMailer struct {
	transport Transport
}

func NewVisitorMailer(t Transport) *VisitorMailer {
	return &VisitorMailer{transport: t}
}

func (m *VisitorMailer) SendVisitorStatus(ctx context.Context, v *domain.Visitor, hostName string) error {
	return m.deliver(ctx, v, statusMessage(v, hostName))
}

func (m *VisitorMailer) SendBadgeIssued(ctx context.Context, v *domain.Visitor, badge domain.BadgeData) error {
	return m.deliver(ctx, v, badgeMessage(v, badge))
}

func (m *VisitorMailer) deliver(ctx context.Context, v *domain.Visitor, msg Message) error {
	if v.Email == "" {
		return ErrNoRecipient
	}
	msg.To = v.Email
	msg.ToName = v.FullName
	return m.transport.Deliver(ctx, msg)
}

var _ Service = (*VisitorMailer)(nil)

func statusMessage(v *domain.Visitor, hostName string) Message {
	if hostName == "" {
		hostName = "your host"
	}
	switch v.Status {
	case domain.StatusApproved:
		return Message{
			Subject: "Your visit has been approved",
			Text: fmt.Sprintf("Hello %s,\n\n%s approved your visit (%s). Please collect your badge at the front desk.",
				v.FullName, hostName, v.Purpose),
			HTML: fmt.Sprintf(`<p>Hello %s,</p><p><b>%s</b> approved your visit (%s).</p><p>Please collect your badge at the front desk.</p>`,
				html.EscapeString(v.FullName), html.EscapeString(hostName), html.EscapeString(v.Purpose)),
		}
	default:
		return Message{
			Subject: "Your visit request was declined",
			Text: fmt.Sprintf("Hello %s,\n\n%s is unable to accept your visit (%s) at this time.",
				v.FullName, hostName, v.Purpose),
			HTML: fmt.Sprintf(`<p>Hello %s,</p><p><b>%s</b> is unable to accept your visit (%s) at this time.</p>`,
				html.EscapeString(v.FullName), html.EscapeString(hostName), html.EscapeString(v.Purpose)),
		}
	}
}

func badgeMessage(v *domain.Visitor, b domain.BadgeData) Message {
	return Message{
		Subject: "Your visitor badge",
		Text: fmt.Sprintf("Hello %s,\n\nYour badge was issued at %s. Host: %s. Show the QR code at the gate to check in.",
			v.FullName, b.Time, b.Host),
		HTML: fmt.Sprintf(`<p>Hello %s,</p><p>Your badge was issued at %s. Host: <b>%s</b>.</p><p><img src="%s" alt="badge QR code"></p>`,
			html.EscapeString(v.FullName), html.EscapeString(b.Time), html.EscapeString(b.Host), b.QRCode),
	}
}
