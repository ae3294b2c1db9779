// Package handlers exposes the admin, host and gate HTTP surfaces.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/visitorgate/internal/cache"
	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/internal/service"
	"github.com/diagnosis/visitorgate/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Middleware is the chi middleware signature.
type Middleware = func(http.Handler) http.Handler

func passthrough(next http.Handler) http.Handler { return next }

func orPassthrough(m Middleware) Middleware {
	if m == nil {
		return passthrough
	}
	return m
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return false
	}
	return true
}

type visitorIDIn struct {
	VisitorID string `json:"visitorId"`
}

func decodeVisitorID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var in visitorIDIn
	if !decodeJSON(w, r, &in) {
		return "", false
	}
	if in.VisitorID == "" {
		response.BadRequest(w, "visitorId is required")
		return "", false
	}
	return in.VisitorID, true
}

// visitorIn is the visitor form shared by the gate and host routes.
type visitorIn struct {
	domain.VisitorProfile
	HostID string `json:"hostEmployee"`
	domain.CheckInWindow
}

// VisitorReader serves GET /visitor/{id} through the visitor cache.
type VisitorReader struct {
	visitors service.VisitorService
	cache    *cache.VisitorCache
}

func NewVisitorReader(visitors service.VisitorService, c *cache.VisitorCache) *VisitorReader {
	return &VisitorReader{visitors: visitors, cache: c}
}

func (vr *VisitorReader) get(w http.ResponseWriter, r *http.Request, requester domain.Identity) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	useCache := vr.cache != nil && r.URL.Query().Get("noCache") != "true"

	if useCache {
		if v, ok := vr.cache.Get(ctx, id); ok {
			if err := service.CanView(requester, v); err != nil {
				response.FromError(ctx, w, err)
				return
			}
			logger.DebugContext(ctx, "Visitor served from cache", "visitor_id", id)
			response.WriteJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"message":   "Visitor details retrieved from cache",
				"visitor":   v,
				"fromCache": true,
			})
			return
		}
	}

	v, err := vr.visitors.Get(ctx, id, requester)
	if err != nil {
		response.FromError(ctx, w, err)
		return
	}
	if vr.cache != nil {
		vr.cache.Put(ctx, v)
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Visitor details retrieved",
		"visitor":   v,
		"fromCache": false,
	})
}
