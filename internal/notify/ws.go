package notify

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/pkg/logger"
)

// IdentityVerifier turns a session token into the caller identity.
type IdentityVerifier interface {
	VerifyToken(token string) (domain.Identity, error)
}

// clientMessage is what a browser may send after connecting.
type clientMessage struct {
	Type   string `json:"type"`
	HostID string `json:"hostId,omitempty"`
	GateID string `json:"gateId,omitempty"`
}

// Handler serves GET /ws?token=<jwt> for hosts and gates.
type Handler struct {
	registry       *Registry
	verifier       IdentityVerifier
	originPatterns []string
}

// NewHandler accepts the same origin list as the CORS middleware. Full
// origins are reduced to their host since the upgrade only matches hosts.
func NewHandler(registry *Registry, verifier IdentityVerifier, origins []string) *Handler {
	return &Handler{registry: registry, verifier: verifier, originPatterns: originHosts(origins)}
}

func originHosts(origins []string) []string {
	var hosts []string
	for _, o := range origins {
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
			continue
		}
		hosts = append(hosts, o)
	}
	return hosts
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, `{"error":"missing token","code":"auth_required"}`, http.StatusUnauthorized)
		return
	}
	id, err := h.verifier.VerifyToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token","code":"invalid_token"}`, http.StatusUnauthorized)
		return
	}
	if !id.IsHost() && !id.IsGate() {
		http.Error(w, `{"error":"only hosts and gates receive notifications","code":"forbidden"}`, http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		return
	}
	sub, err := h.registry.Register(id)
	if err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.registry.Unregister(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger.InfoContext(ctx, "notification channel opened", "role", string(id.Role), "id", id.ID)

	replies := make(chan Event, 4)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				readErr <- err
				return
			}
			select {
			case replies <- acknowledge(id, msg):
			default:
			}
		}
	}()

	_ = h.write(ctx, conn, NewEvent(EventRegistered, map[string]string{"role": string(id.Role), "id": id.ID}))
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			logger.InfoContext(ctx, "notification channel closed", "role", string(id.Role), "id", id.ID)
			return
		case evt := <-replies:
			if err := h.write(ctx, conn, evt); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		case evt, ok := <-sub.Outbox():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "replaced")
				return
			}
			if err := h.write(ctx, conn, evt); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, evt Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, evt)
}

// acknowledge answers the legacy registerHost/registerGate messages. The
// connection is already bound to the token identity; a message naming a
// different identity is rejected.
func acknowledge(id domain.Identity, msg clientMessage) Event {
	var claimed domain.Identity
	switch msg.Type {
	case "registerHost":
		claimed = domain.Identity{Role: domain.RoleHost, ID: msg.HostID}
	case "registerGate":
		claimed = domain.Identity{Role: domain.RoleGate, ID: msg.GateID}
	default:
		return NewEvent("error", map[string]string{"message": "unsupported message type"})
	}
	if claimed != id {
		return NewEvent("error", map[string]string{"message": "identity does not match session"})
	}
	return NewEvent(EventRegistered, map[string]string{"role": string(id.Role), "id": id.ID})
}
