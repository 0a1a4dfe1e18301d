package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	repo      *Repository
	service   *rbac.Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, service *rbac.Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermRolesView)))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermRolesEdit)))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Put("/{id}/permissions", h.setPermissions)
		r.Put("/{id}/modules", h.setModules)
	})
}

// list returns the roles visible inside the caller's tenant, system roles
// included. The tenant comes from the access decision on the context, never
// from a request parameter, so a caller cannot enumerate another
// organization's roles.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	roles, err := h.repo.ListByOrganization(r.Context(), access.OrganizationID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, access, ok := h.roleScope(w, r)
	if !ok {
		return
	}
	detail, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !detail.AppliesTo(access.OrganizationID) {
		// Foreign-tenant roles are invisible, not forbidden.
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

type rolePayload struct {
	Code  string `json:"code" validate:"required,max=50"`
	Name  string `json:"name" validate:"required,max=100"`
	Level int    `json:"level" validate:"min=1,max=6"`
	Scope string `json:"scope" validate:"omitempty,oneof=own team organization all"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code, name, and level 1-6 required")
		return
	}
	role, err := h.service.CreateRole(r.Context(), access.OrganizationID, payload.Code, payload.Name, payload.Level, rbac.Scope(payload.Scope))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.roleScope(w, r)
	if !ok {
		return
	}
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if payload.Name == "" || payload.Level < 1 || payload.Level > 6 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name and level 1-6 required")
		return
	}
	if err := h.service.UpdateRole(r.Context(), id, payload.Name, payload.Level, rbac.Scope(payload.Scope)); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _, ok := h.roleScope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type edgePayload struct {
	IDs []uuid.UUID `json:"ids"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	h.setEdges(w, r, h.service.SetRolePermissions)
}

func (h *Handler) setModules(w http.ResponseWriter, r *http.Request) {
	h.setEdges(w, r, h.service.SetRoleModules)
}

// setEdges replaces a role's attached permission or module set wholesale. The
// service diffs against the current set, so unchanged edges keep their
// original granted_at.
func (h *Handler) setEdges(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID, []uuid.UUID, uuid.UUID) error) {
	id, access, ok := h.roleScope(w, r)
	if !ok {
		return
	}
	var payload edgePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := apply(r.Context(), id, payload.IDs, access.PrincipalID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) roleScope(w http.ResponseWriter, r *http.Request) (uuid.UUID, shared.Access, bool) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return uuid.Nil, shared.Access{}, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return uuid.Nil, shared.Access{}, false
	}
	return id, access, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, rbac.ErrDuplicateCode):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, rbac.ErrSystemRole):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "system roles are read-only")
	default:
		h.logger.Error("roles request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
