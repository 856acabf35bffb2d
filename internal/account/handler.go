package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"naskahlive/internal/account/model"
	"naskahlive/internal/identity"
	"naskahlive/pkg/respond"
)

type Service interface {
	Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error)
	Logout(ctx context.Context, credential string) error
	Me(ctx context.Context, who identity.Identity) (model.UserResponse, error)
}

type AccountHandler struct {
	Service Service
}

func NewAccountHandler(service Service) *AccountHandler {
	return &AccountHandler{Service: service}
}

// Routes mounts under /api/auth. requireAuth guards logout and user.
func (h *AccountHandler) Routes(requireAuth func(http.Handler) http.Handler) func(chi.Router) {
	return func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", h.Logout)
			r.Get("/user", h.CurrentUser)
		})
	}
}

func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	resp, err := h.Service.Register(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, resp)
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := respond.Bind(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	resp, err := h.Service.Login(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), identity.CredentialFromRequest(r)); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	who, _ := identity.FromContext(r.Context())
	me, err := h.Service.Me(r.Context(), who)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, me)
}
