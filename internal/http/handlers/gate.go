package handlers

import (
	"net/http"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/middleware"
	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/internal/service"
	"github.com/go-chi/chi/v5"
)

type GateHandler struct {
	Visitors service.VisitorService
	Accounts service.AccountService
	Reader   *VisitorReader

	Auth        Middleware
	LoginLimit  Middleware
	Idempotency Middleware
}

func (h *GateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(orPassthrough(h.LoginLimit)).Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(orPassthrough(h.Auth))
		r.With(orPassthrough(h.Idempotency)).Post("/addVisitor", h.addVisitor)
		r.Post("/requestApproval", h.requestApproval)
		r.Post("/generateQR", h.generateQR)
		r.Put("/checkin", h.checkIn)
		r.Put("/checkout", h.checkOut)
		r.Get("/visitors/today", h.today)
		r.Get("/visitor/{id}", h.visitor)
	})
	return r
}

func (h *GateHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.Accounts.Login(r.Context(), domain.RoleGate, in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Gate login successful",
		"token":      out.Token,
		"expires_in": out.ExpiresIn,
		"gate":       out.Account,
	})
}

func (h *GateHandler) addVisitor(w http.ResponseWriter, r *http.Request) {
	var in visitorIn
	if !decodeJSON(w, r, &in) {
		return
	}
	gateID := middleware.Identity(r).ID
	v, err := h.Visitors.Create(r.Context(), in.VisitorProfile, in.HostID, &gateID)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Visitor added successfully",
		"visitor": v,
	})
}

func (h *GateHandler) requestApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeVisitorID(w, r)
	if !ok {
		return
	}
	v, err := h.Visitors.RequestApproval(r.Context(), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Approval request sent to host",
		"visitor": v,
	})
}

func (h *GateHandler) generateQR(w http.ResponseWriter, r *http.Request) {
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

func (h *GateHandler) checkIn(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeVisitorID(w, r)
	if !ok {
		return
	}
	v, err := h.Visitors.CheckIn(r.Context(), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Visitor checked-in",
		"checkIn": v.CheckIn,
	})
}

func (h *GateHandler) checkOut(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeVisitorID(w, r)
	if !ok {
		return
	}
	v, err := h.Visitors.CheckOut(r.Context(), id)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":  "Visitor checked-out",
		"checkOut": v.CheckOut,
	})
}

func (h *GateHandler) today(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Visitors.ListToday(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"visitors": vs})
}

func (h *GateHandler) visitor(w http.ResponseWriter, r *http.Request) {
	h.Reader.get(w, r, middleware.Identity(r))
}
