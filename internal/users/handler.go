package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler manages account administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	assigner  *rbac.Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, assigner *rbac.Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, assigner: assigner, rbac: mw, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermUsersView)))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/roles", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermUsersEdit)))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/verify", h.statusAction(func(s *Service) statusFn { return s.Verify }))
		r.Post("/{id}/activate", h.statusAction(func(s *Service) statusFn { return s.Activate }))
		r.Post("/{id}/suspend", h.statusAction(func(s *Service) statusFn { return s.Suspend }))
		r.Post("/{id}/lock", h.lock)
		r.Put("/{id}/scope", h.setScope)
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.removeRole)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	accounts, err := h.service.List(r.Context(), access.OrganizationID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	assigned, err := h.service.ListRoles(r.Context(), acc.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assigned)
}

type createPayload struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8"`
	Scope    string `json:"default_scope" validate:"omitempty,oneof=own team organization all"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var payload createPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "email, full_name, and password of 8+ chars required")
		return
	}
	acc, err := h.service.Create(r.Context(), access.OrganizationID, payload.Email, payload.FullName, payload.Password, rbac.Scope(payload.Scope))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

type updatePayload struct {
	FullName string         `json:"full_name" validate:"required,max=200"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	var payload updatePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "full_name required")
		return
	}
	if err := h.service.UpdateProfile(r.Context(), acc.ID, payload.FullName, payload.Metadata); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), acc.ID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type statusFn func(ctx context.Context, id uuid.UUID) error

func (h *Handler) statusAction(pick func(*Service) statusFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, ok := h.visibleAccount(w, r)
		if !ok {
			return
		}
		if err := pick(h.service)(r.Context(), acc.ID); err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

type lockPayload struct {
	Until time.Time `json:"until"`
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	var payload lockPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.Lock(r.Context(), acc.ID, payload.Until); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type scopePayload struct {
	Scope string `json:"default_scope" validate:"required,oneof=own team organization all"`
}

func (h *Handler) setScope(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	var payload scopePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "default_scope must be own, team, organization, or all")
		return
	}
	if err := h.service.SetDefaultScope(r.Context(), acc.ID, rbac.Scope(payload.Scope)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type assignPayload struct {
	RoleID    uuid.UUID `json:"role_id"`
	IsPrimary bool      `json:"is_primary"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	var payload assignPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil || payload.RoleID == uuid.Nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role_id required")
		return
	}
	if err := h.assigner.AssignRole(r.Context(), acc.ID, payload.RoleID, access.PrincipalID, payload.IsPrimary); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.visibleAccount(w, r)
	if !ok {
		return
	}
	roleID, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.assigner.RemoveRole(r.Context(), acc.ID, roleID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// visibleAccount loads the target account and enforces the tenant boundary:
// administrators only reach accounts of their own organization unless their
// resolved scope is "all".
func (h *Handler) visibleAccount(w http.ResponseWriter, r *http.Request) (Account, bool) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return Account{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return Account{}, false
	}
	acc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return Account{}, false
	}
	if acc.OrganizationID != access.OrganizationID && access.Scope != string(rbac.ScopeAll) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return Account{}, false
	}
	return acc, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, rbac.ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "email already registered")
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, rbac.ErrOrganizationMismatch):
		httpx.Problem(w, http.StatusConflict, "Conflict", "role belongs to another organization")
	default:
		h.logger.Error("users request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
