package handlers

import (
	"net/http"

	"github.com/diagnosis/visitorgate/internal/domain"
	"github.com/diagnosis/visitorgate/internal/http/middleware"
	"github.com/diagnosis/visitorgate/internal/http/response"
	"github.com/diagnosis/visitorgate/internal/service"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	Visitors service.VisitorService
	Accounts service.AccountService
	Reader   *VisitorReader

	Auth       Middleware
	LoginLimit Middleware
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(orPassthrough(h.LoginLimit)).Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(orPassthrough(h.Auth))
		r.Post("/add", h.addAdmin)

		r.Post("/host/add", h.addHost)
		r.Delete("/host/delete", h.deleteHost)
		r.Get("/hosts", h.hosts)
		r.Put("/setLimit", h.setLimit)
		r.Put("/setLimitAll", h.setLimitAll)

		r.Post("/gate/add", h.addGate)
		r.Delete("/gate/delete", h.deleteGate)
		r.Get("/gates", h.gates)

		r.Get("/visitors", h.visitors)
		r.Get("/visitor/{id}", h.visitor)
	})
	return r
}

func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request) {
	var in domain.LoginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.Accounts.Login(r.Context(), domain.RoleAdmin, in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":    "Admin login successful",
		"token":      out.Token,
		"expires_in": out.ExpiresIn,
		"admin":      out.Account,
	})
}

func (h *AdminHandler) addAdmin(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateAdminRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	a, err := h.Accounts.CreateAdmin(r.Context(), in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Admin created successfully",
		"admin":   a,
	})
}

func (h *AdminHandler) addHost(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateHostRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	host, err := h.Accounts.CreateHost(r.Context(), in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Host added successfully",
		"host":    host,
	})
}

type hostIDIn struct {
	HostID string `json:"hostId"`
}

func (h *AdminHandler) deleteHost(w http.ResponseWriter, r *http.Request) {
	var in hostIDIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.Accounts.DeleteHost(r.Context(), in.HostID); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "Host deleted successfully"})
}

func (h *AdminHandler) hosts(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Accounts.ListHosts(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"hosts": hs})
}

type limitIn struct {
	HostID string `json:"hostId"`
	Limit  int    `json:"limit"`
}

func (h *AdminHandler) setLimit(w http.ResponseWriter, r *http.Request) {
	var in limitIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.Accounts.SetLimit(r.Context(), in.HostID, in.Limit); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Pre-approval limit updated for the host",
		"hostId":  in.HostID,
		"limit":   in.Limit,
	})
}

func (h *AdminHandler) setLimitAll(w http.ResponseWriter, r *http.Request) {
	var in limitIn
	if !decodeJSON(w, r, &in) {
		return
	}
	n, err := h.Accounts.SetLimitAll(r.Context(), in.Limit)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"message":       "Pre-approval limit updated for all hosts",
		"modifiedCount": n,
	})
}

func (h *AdminHandler) addGate(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateGateRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	g, err := h.Accounts.CreateGate(r.Context(), in)
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Gate added successfully",
		"gate":    g,
	})
}

type gateIDIn struct {
	GateID string `json:"gateId"`
}

func (h *AdminHandler) deleteGate(w http.ResponseWriter, r *http.Request) {
	var in gateIDIn
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.Accounts.DeleteGate(r.Context(), in.GateID); err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "Gate deleted successfully"})
}

func (h *AdminHandler) gates(w http.ResponseWriter, r *http.Request) {
	gs, err := h.Accounts.ListGates(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"gates": gs})
}

func (h *AdminHandler) visitors(w http.ResponseWriter, r *http.Request) {
	vs, err := h.Visitors.ListAll(r.Context())
	if err != nil {
		response.FromError(r.Context(), w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]any{"visitors": vs})
}

func (h *AdminHandler) visitor(w http.ResponseWriter, r *http.Request) {
	h.Reader.get(w, r, middleware.Identity(r))
}
