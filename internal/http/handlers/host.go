package handlers

import (
	"context"
	"net/http"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/middleware"
	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/internal/service"
	"github.com/go-chi/chi/v5"
)

type HostHandler struct {
	Visitors service.VisitorService
	Accounts service.AccountService
	Reader   *VisitorReader

	Auth       Middleware
	LoginLimit Middleware
}

func (h *HostHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(orPassthrough(h.LoginLimit)).Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(orPassthrough(h.Auth))
		r.Post("/visitor/add", h.preApprove)
		r.Get("/visitors", h.visitors)
		r.Get("/preApproved", h.preApproved)
		r.Get("/pendingReq", h.pending)
		r.Get("/visitor/{id}", h.visitor)
		r.Put("/approve", h.approve)
		r.Put("/decline", h.decline)
		r.Post("/generate-qr", h.generateQR)
	})
	return r
}

func (h *HostHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.Accounts.Login(r.Context(), domain.RoleHost, in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Host login successful",
		"token":      out.Token,
		"expires_in": out.ExpiresIn,
		"host":       out.Account,
	})
}

func (h *HostHandler) preApprove(w http.ResponseWriter, r *http.Request) {
	var in visitorIn
	if !decodeJSON(w, r, &in) {
		return
	}
	hostID := middleware.Identity(r).ID
	v, err := h.Visitors.PreApprove(r.Context(), hostID, in.VisitorProfile, in.CheckInWindow)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Visitor pre-approved successfully",
		"visitor": v,
	})
}

func (h *HostHandler) visitors(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Visitors.ListForHost(r.Context(), middleware.Identity(r).ID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"visitors": vs})
}

func (h *HostHandler) preApproved(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Visitors.ListPreApproved(r.Context(), middleware.Identity(r).ID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"visitors": vs})
}

func (h *HostHandler) pending(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Visitors.PendingRequests(r.Context(), middleware.Identity(r).ID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "Pending visit requests",
		"visitors": vs,
	})
}

func (h *HostHandler) approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Visitors.Approve, "Visitor approved")
}

func (h *HostHandler) decline(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.Visitors.Decline, "Visitor declined")
}

type decision func(ctx context.Context, hostID, visitorID string) (*domain.Visitor, error)

func (h *HostHandler) decide(w http.ResponseWriter, r *http.Request, fn decision, msg string) {
	id, ok := decodeVisitorID(w, r)
	if !ok {
		return
	}
	v, err := fn(r.Context(), middleware.Identity(r).ID, id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message": msg,
		"visitor": v,
	})
}

func (h *HostHandler) generateQR(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeVisitorID(w, r)
	if !ok {
		return
	}
	badge, err := h.Visitors.IssueBadge(r.Context(), id, middleware.Identity(r))
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":   "QR code generated successfully",
		"badgeData": badge,
	})
}

func (h *HostHandler) visitor(w http.ResponseWriter, r *http.Request) {
	h.Reader.get(w, r, middleware.Identity(r))
}
