package handlers

import (
	"net"
	"net/http"
	"time"

	"github.com/diagnosis/visitorgate/internal/cache"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/middleware"
	"github.com/diagnosis/visitorgate/internal/service"
	mw "github.com/diagnosis/visitorgate/pkg/middleware"
	"github.com/go-chi/chi/v5"
)

type Deps struct {
	Visitors     service.VisitorService
	Accounts     service.AccountService
	VisitorCache *cache.VisitorCache
	Verifier     *middleware.TokenVerifier
	// Realtime serves GET /ws. Nil leaves the route unmounted.
	Realtime http.Handler

	LoginCounter   middleware.Counter
	LoginRequests  int
	LoginWindow    time.Duration
	TrustedProxies []*net.IPNet
	Idempotency    mw.IdempotencyStore
	IdempotencyTTL time.Duration
	AllowedOrigins []string
}

// NewRouter assembles the /api surface, the websocket route and /healthz.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visitorgate"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.CORS(d.AllowedOrigins))

	var loginLimit, idempotent Middleware
	if d.LoginCounter != nil {
		loginLimit = middleware.NewRateLimiter(d.LoginCounter, middleware.RateLimitConfig{
			Requests:       d.LoginRequests,
			Window:         d.LoginWindow,
			TrustedProxies: d.TrustedProxies,
		}).Middleware()
	}
	if d.Idempotency != nil {
		ttl := d.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		idempotent = mw.IdempotencyMiddleware(d.Idempotency, ttl)
	}
	reader := NewVisitorReader(d.Visitors, d.VisitorCache)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/admin", (&AdminHandler{
			Visitors:   d.Visitors,
			Accounts:   d.Accounts,
			Reader:     reader,
			Auth:       middleware.RequireRole(d.Verifier, domain.RoleAdmin),
			LoginLimit: loginLimit,
		}).Routes())
		r.Mount("/host", (&HostHandler{
			Visitors:   d.Visitors,
			Accounts:   d.Accounts,
			Reader:     reader,
			Auth:       middleware.RequireRole(d.Verifier, domain.RoleHost),
			LoginLimit: loginLimit,
		}).Routes())
		r.Mount("/gate", (&GateHandler{
			Visitors:    d.Visitors,
			Accounts:    d.Accounts,
			Reader:      reader,
			Auth:        middleware.RequireRole(d.Verifier, domain.RoleGate),
			LoginLimit:  loginLimit,
			Idempotency: idempotent,
		}).Routes())
	})
	if d.Realtime != nil {
		r.Method(http.MethodGet, "/ws", d.Realtime)
	}
	return r
}
