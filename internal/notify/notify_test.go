package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	host = domain.Identity{Role: domain.RoleHost, ID: "host-1"}
	gate = domain.Identity{Role: domain.RoleGate, ID: "gate-1"}
)

func TestRegistryDropsWhenAbsentOrFull(t *testing.T) {
	r := NewRegistry(1)
	assert.False(t, r.Emit(host, NewEvent("x", nil)))

	c, err := r.Register(host)
	require.NoError(t, err)
	assert.True(t, r.Emit(host, NewEvent("first", nil)))
	assert.False(t, r.Emit(host, NewEvent("second", nil)))

	evt := <-c.Outbox()
	assert.Equal(t, "first", evt.Type)
}

func TestRegistryReplaceAndUnregister(t *testing.T) {
	r := NewRegistry(4)
	old, err := r.Register(host)
	require.NoError(t, err)
	cur, err := r.Register(host)
	require.NoError(t, err)

	_, ok := <-old.Outbox()
	assert.False(t, ok, "replaced channel must be closed")

	r.Unregister(old)
	assert.True(t, r.Connected(host), "stale unregister must not remove the new channel")

	r.Unregister(cur)
	r.Unregister(cur)
	assert.False(t, r.Connected(host))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(4)
	c, err := r.Register(gate)
	require.NoError(t, err)
	r.Close()

	_, ok := <-c.Outbox()
	assert.False(t, ok)
	_, err = r.Register(gate)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.False(t, r.Emit(gate, NewEvent("x", nil)))
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	fail     bool
}

func (b *recordingBus) Publish(_ context.Context, subject string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	if b.fail {
		return errors.New("nats down")
	}
	return nil
}

func (b *recordingBus) Close() error { return nil }

type recordingMailer struct {
	mu       sync.Mutex
	statuses []domain.VisitorStatus
	badges   int
}

func (m *recordingMailer) SendVisitorStatus(_ context.Context, v *domain.Visitor, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, v.Status)
	return nil
}

func (m *recordingMailer) SendBadgeIssued(context.Context, *domain.Visitor, domain.BadgeData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges++
	return errors.New("smtp refused")
}

func TestDispatcherRoutesEvents(t *testing.T) {
	r := NewRegistry(4)
	hostConn, _ := r.Register(host)
	gateConn, _ := r.Register(gate)
	bus := &recordingBus{fail: true}
	mail := &recordingMailer{}
	d := NewDispatcher(r, bus, mail)
	ctx := context.Background()

	gateID := gate.ID
	v := &domain.Visitor{ID: "v-1", HostID: host.ID, GateID: &gateID, Email: "ada@example.com", Status: domain.StatusWaiting}
	d.Notify(ctx, Notification{Kind: KindNewVisitRequest, Visitor: v})

	evt := <-hostConn.Outbox()
	assert.Equal(t, EventNewVisitRequest, evt.Type)
	var req NewVisitRequestPayload
	require.NoError(t, json.Unmarshal(evt.Data, &req))
	assert.Equal(t, "v-1", req.Visitor.ID)

	approved := *v
	approved.Status = domain.StatusApproved
	d.Notify(ctx, Notification{Kind: KindVisitorStatus, Visitor: &approved, HostName: "Grace"})

	evt = <-gateConn.Outbox()
	assert.Equal(t, EventVisitorStatus, evt.Type)
	var st VisitorStatusPayload
	require.NoError(t, json.Unmarshal(evt.Data, &st))
	assert.Equal(t, VisitorStatusPayload{VisitorID: "v-1", Status: domain.StatusApproved}, st)

	d.Notify(ctx, Notification{Kind: KindBadgeIssued, Visitor: &approved, Badge: &domain.BadgeData{}})
	d.Wait()

	assert.Equal(t, []string{"visitor.new-visit-request", "visitor.visitor-status", "visitor.badge-issued"}, bus.subjects)
	assert.Equal(t, []domain.VisitorStatus{domain.StatusApproved}, mail.statuses)
	assert.Equal(t, 1, mail.badges)
	assert.Empty(t, hostConn.Outbox())
}

func TestDispatcherDropsForDisconnectedGate(t *testing.T) {
	d := NewDispatcher(NewRegistry(1), nil, nil)
	gateID := "nobody"
	d.Notify(context.Background(), Notification{
		Kind:    KindVisitorStatus,
		Visitor: &domain.Visitor{ID: "v-2", GateID: &gateID, Status: domain.StatusDeclined},
	})
	d.Notify(context.Background(), Notification{Kind: KindVisitorStatus})
}

type staticVerifier map[string]domain.Identity

func (s staticVerifier) VerifyToken(token string) (domain.Identity, error) {
	id, ok := s[token]
	if !ok {
		return domain.Identity{}, errors.New("bad token")
	}
	return id, nil
}

func TestWebSocketHandler(t *testing.T) {
	r := NewRegistry(4)
	verifier := staticVerifier{
		"host-token":  host,
		"admin-token": {Role: domain.RoleAdmin, ID: "admin-1"},
	}
	srv := httptest.NewServer(NewHandler(r, verifier, nil))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL+"/ws?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, wsURL+"/ws?token=admin-token", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL+"/ws?token=host-token", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventRegistered, evt.Type)

	require.True(t, r.Emit(host, NewEvent(EventNewVisitRequest, NewVisitRequestPayload{Visitor: &domain.Visitor{ID: "v-9"}})))
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventNewVisitRequest, evt.Type)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "registerHost", HostID: host.ID}))
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventRegistered, evt.Type)

	require.NoError(t, wsjson.Write(ctx, conn, clientMessage{Type: "registerHost", HostID: "someone-else"}))
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, "error", evt.Type)
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"http://localhost:5173", "https://app.example.com", "*.example.org", ""})
	assert.Equal(t, []string{"localhost:5173", "app.example.com", "*.example.org"}, got)
}

func TestWebSocketHandlerAcceptsConfiguredOrigins(t *testing.T) {
	cfg := config.Load()
	r := NewRegistry(4)
	srv := httptest.NewServer(NewHandler(r, staticVerifier{"host-token": host}, cfg.Server.AllowedOrigins))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=host-token"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {cfg.Server.AllowedOrigins[0]}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	assert.Equal(t, EventRegistered, evt.Type)

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"http://evil.test"}},
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
