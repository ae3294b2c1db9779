// Package notify pushes visitor lifecycle events to connected hosts and gates.
package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/diagnosis/visitorgate/internal/domain"
)

const (
	EventNewVisitRequest = "new-visit-request"
	EventVisitorStatus   = "visitor-status"
	EventRegistered      = "registered"
)

const defaultOutbox = 16

var ErrRegistryClosed = errors.New("notify: registry closed")

type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// Conn is one registered real-time channel. Events arrive on Outbox until the
// connection is unregistered, replaced or the registry closes.
type Conn struct {
	Identity domain.Identity
	out      chan Event
	once     sync.Once
}

func (c *Conn) Outbox() <-chan Event { return c.out }

func (c *Conn) close() { c.once.Do(func() { close(c.out) }) }

// Registry maps host and gate identities to their open channel. It lives for
// the lifetime of the server and is closed at shutdown.
type Registry struct {
	mu     sync.RWMutex
	conns  map[domain.Identity]*Conn
	outbox int
	closed bool
}

func NewRegistry(outbox int) *Registry {
	if outbox <= 0 {
		outbox = defaultOutbox
	}
	return &Registry{conns: map[domain.Identity]*Conn{}, outbox: outbox}
}

// Register binds id to a new channel. A previous channel for the same identity
// is closed and replaced.
func (r *Registry) Register(id domain.Identity) (*Conn, error) {
	c := &Conn{Identity: id, out: make(chan Event, r.outbox)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if prev, ok := r.conns[id]; ok {
		prev.close()
	}
	r.conns[id] = c
	return c, nil
}

// Unregister removes c wherever it is still mapped. Safe to call repeatedly.
func (r *Registry) Unregister(c *Conn) {
	if c == nil {
		return
	}
	r.mu.Lock()
	for id, cur := range r.conns {
		if cur == c {
			delete(r.conns, id)
		}
	}
	r.mu.Unlock()
	c.close()
}

// Emit queues evt for id. It never blocks: the event is dropped when nobody is
// connected as id or the outbox is full.
func (r *Registry) Emit(id domain.Identity, evt Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	select {
	case c.out <- evt:
		return true
	default:
		return false
	}
}

func (r *Registry) Connected(id domain.Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close disconnects every channel and rejects later registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, c := range r.conns {
		c.close()
		delete(r.conns, id)
	}
}
