package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/diagnosis/visitorgate/pkg/logger"
	"github.com/nats-io/nats.go"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name("visitorgate"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	return n.conn.Drain()
}

// NopBus is used when no NATS URL is configured.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, interface{}) error { return nil }
func (NopBus) Subscribe(string, func(*Message)) error { return nil }
func (NopBus) Close() error { return nil }

// Subjects mirrored for lifecycle events
const (
	SubjectPrefix = "visitor."

	VisitorCreated     = "visitor.created"
	VisitorPreApproved = "visitor.pre-approved"
	NewVisitRequest    = "visitor.new-visit-request"
	VisitorStatus      = "visitor.visitor-status"
	BadgeIssued        = "visitor.badge-issued"
	VisitorCheckedIn   = "visitor.checked-in"
	VisitorCheckedOut  = "visitor.checked-out"
)

// VisitorEvent is the payload published on every visitor.* subject.
type VisitorEvent struct {
	VisitorID  string    `json:"visitorId"`
	HostID     string    `json:"hostId"`
	GateID     string    `json:"gateId,omitempty"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurredAt"`
}
