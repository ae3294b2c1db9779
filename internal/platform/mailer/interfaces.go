package mailer

import (
	"context"
	"errors"

	"github.com/diagnosis/visitorgate/internal/domain"
)

var ErrNoRecipient = errors.New("mailer: empty recipient address")

// Message is a rendered e-mail ready for a transport.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Transport hands a rendered message to a delivery backend.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Service delivers visitor notification e-mails.
type Service interface {
	SendVisitorStatus(ctx context.Context, v *domain.Visitor, hostName string) error
	SendBadgeIssued(ctx context.Context, v *domain.Visitor, badge domain.BadgeData) error
}
