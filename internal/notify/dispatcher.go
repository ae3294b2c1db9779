package notify

import (
	"context"
	"sync"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/platform/mailer"
	"github.com/diagnosis/visitorgate/pkg/events"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

type Kind string

const (
	KindCreated         Kind = "created"
	KindPreApproved     Kind = "pre-approved"
	KindNewVisitRequest Kind = "new-visit-request"
	KindVisitorStatus   Kind = "visitor-status"
	KindBadgeIssued     Kind = "badge-issued"
	KindCheckedIn       Kind = "checked-in"
	KindCheckedOut      Kind = "checked-out"
)

const mailTimeout = 30 * time.Second

var subjects = map[Kind]string{
	KindCreated:         events.VisitorCreated,
	KindPreApproved:     events.VisitorPreApproved,
	KindNewVisitRequest: events.NewVisitRequest,
	KindVisitorStatus:   events.VisitorStatus,
	KindBadgeIssued:     events.BadgeIssued,
	KindCheckedIn:       events.VisitorCheckedIn,
	KindCheckedOut:      events.VisitorCheckedOut,
}

// Notification describes one lifecycle change. Visitor is a snapshot taken
// after the change was stored.
type Notification struct {
	Kind     Kind
	Visitor  *domain.Visitor
	HostName string
	Badge    *domain.BadgeData
}

type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type VisitorStatusPayload struct {
	VisitorID string               `json:"visitorId"`
	Status    domain.VisitorStatus `json:"status"`
}

type NewVisitRequestPayload struct {
	Visitor *domain.Visitor `json:"visitor"`
}

// Dispatcher fans a notification out to the socket registry, the event bus
// and the visitor's inbox. None of these can fail the caller.
type Dispatcher struct {
	registry *Registry
	bus      events.Publisher
	mail     mailer.Service
	wg       sync.WaitGroup
}

func NewDispatcher(registry *Registry, bus events.Publisher, mail mailer.Service) *Dispatcher {
	if bus == nil {
		bus = events.NopBus{}
	}
	return &Dispatcher{registry: registry, bus: bus, mail: mail}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	v := n.Visitor
	if v == nil {
		return
	}

	switch n.Kind {
	case KindNewVisitRequest:
		to := domain.Identity{Role: domain.RoleHost, ID: v.HostID}
		if !d.registry.Emit(to, NewEvent(EventNewVisitRequest, NewVisitRequestPayload{Visitor: v})) {
			logger.DebugContext(ctx, "visit request not delivered", "host_id", v.HostID, "visitor_id", v.ID)
		}
	case KindVisitorStatus:
		if v.GateID != nil && *v.GateID != "" {
			to := domain.Identity{Role: domain.RoleGate, ID: *v.GateID}
			payload := VisitorStatusPayload{VisitorID: v.ID, Status: v.Status}
			if !d.registry.Emit(to, NewEvent(EventVisitorStatus, payload)) {
				logger.DebugContext(ctx, "status update not delivered", "gate_id", *v.GateID, "visitor_id", v.ID)
			}
		}
	}

	if subject, ok := subjects[n.Kind]; ok {
		evt := events.VisitorEvent{
			VisitorID:  v.ID,
			HostID:     v.HostID,
			Status:     string(v.Status),
			OccurredAt: time.Now().UTC(),
		}
		if v.GateID != nil {
			evt.GateID = *v.GateID
		}
		if err := d.bus.Publish(ctx, subject, evt); err != nil {
			logger.ErrorContext(ctx, "failed to publish visitor event", "subject", subject, "error", err)
		}
	}

	d.mailVisitor(ctx, n)
}

func (d *Dispatcher) mailVisitor(ctx context.Context, n Notification) {
	if d.mail == nil || n.Visitor.Email == "" {
		return
	}
	v := *n.Visitor
	var send func(context.Context) error
	switch {
	case n.Kind == KindVisitorStatus:
		send = func(ctx context.Context) error { return d.mail.SendVisitorStatus(ctx, &v, n.HostName) }
	case n.Kind == KindBadgeIssued && n.Badge != nil:
		badge := *n.Badge
		send = func(ctx context.Context) error { return d.mail.SendBadgeIssued(ctx, &v, badge) }
	default:
		return
	}

	// Delivery outlives the request but keeps its logging keys.
	mailCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(mailCtx, mailTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to email visitor", "visitor_id", v.ID, "kind", string(n.Kind), "error", err)
		}
	}()
}

// Wait blocks until queued e-mails have been handed off.
func (d *Dispatcher) Wait() { d.wg.Wait() }
