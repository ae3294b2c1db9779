package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/pkg/logger"
	gocache "github.com/patrickmn/go-cache"
)

// Counter records a hit for key and returns the count in the current window.
type Counter interface {
	Hit(ctx context.Context, key string, windowStart, expiresAt time.Time) (int, error)
}

// RateLimitConfig defines rate limiting parameters
type RateLimitConfig struct {
	Requests int           // Max requests per window
	Window   time.Duration // Time window duration
	KeyFunc  func(r *http.Request) []string
	SkipFunc func(r *http.Request) bool
	// TrustedProxies may set X-Forwarded-For for the default KeyFunc.
	TrustedProxies []*net.IPNet
}

type RateLimiter struct {
	counter Counter
	config  RateLimitConfig
	now     func() time.Time
}

func NewRateLimiter(counter Counter, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc(config.TrustedProxies)
	}
	return &RateLimiter{counter: counter, config: config, now: time.Now}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}
			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.config.Window.Seconds())))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open when the counter is unavailable.
func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	hashedKey := fmt.Sprintf("%x", sha256.Sum256([]byte(key)))
	now := rl.now()
	count, err := rl.counter.Hit(ctx, hashedKey, now.Add(-rl.config.Window), now.Add(time.Hour))
	if err != nil {
		logger.WarnContext(ctx, "Rate limit check failed", "error", err)
		return true
	}
	return count <= rl.config.Requests
}

// ClientIPKeyFunc limits by client IP, scoped to the request path.
// Forwarding headers are honoured only when the peer is a trusted proxy.
func ClientIPKeyFunc(trusted []*net.IPNet) func(r *http.Request) []string {
	return func(r *http.Request) []string {
		ip := getClientIP(r, trusted)
		if ip == "" {
			return nil
		}
		return []string{"ip:" + ip + ":" + r.URL.Path}
	}
}

// ParseTrustedProxies accepts CIDRs or bare addresses.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func isTrusted(ip net.IP, trusted []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// getClientIP returns the peer address, or the nearest untrusted hop of
// X-Forwarded-For when the peer is a trusted proxy.
func getClientIP(r *http.Request, trusted []*net.IPNet) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !isTrusted(net.ParseIP(remote), trusted) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			ip := net.ParseIP(hop)
			if ip == nil {
				break
			}
			if !isTrusted(ip, trusted) || i == 0 {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}

// MemoryCounter is a process-local Counter for the memory store driver.
// Each key counts hits in a fixed window that opens on its first hit.
type MemoryCounter struct {
	c      *gocache.Cache
	window time.Duration
}

func NewMemoryCounter(window time.Duration) *MemoryCounter {
	return &MemoryCounter{c: gocache.New(window, 2*window), window: window}
}

func (m *MemoryCounter) Hit(_ context.Context, key string, _, _ time.Time) (int, error) {
	if err := m.c.Add(key, 1, m.window); err == nil {
		return 1, nil
	}
	n, err := m.c.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and IncrementInt.
		m.c.Set(key, 1, m.window)
		return 1, nil
	}
	return n, nil
}
