package orgs

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler manages organization endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers organization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermOrgsView)))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermOrgsEdit)))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type orgPayload struct {
	Code     string         `json:"code" validate:"required,max=50"`
	Name     string         `json:"name" validate:"required,max=255"`
	Settings map[string]any `json:"settings"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	// Tenant-scoped principals see only their own organization.
	only := access.OrganizationID
	if access.Scope == string(rbac.ScopeAll) {
		only = uuid.Nil
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	orgs, paging, err := h.service.List(r.Context(), page, perPage, only)
	if err != nil {
		h.logger.Error("list organizations", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orgs,
		"pagination": paging,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedOrg(w, r)
	if !ok {
		return
	}
	org, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok || access.Scope != string(rbac.ScopeAll) {
		// Creating a tenant is by definition a cross-tenant operation.
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	var payload orgPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code and name required")
		return
	}
	org, err := h.service.Create(r.Context(), payload.Code, payload.Name, payload.Settings)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedOrg(w, r)
	if !ok {
		return
	}
	var payload orgPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.service.Update(r.Context(), id, payload.Name, payload.Settings); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.scopedOrg(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// scopedOrg resolves the organization id from the URL and enforces the tenant
// boundary: a foreign organization id reads as not found unless the caller's
// resolved scope is all.
func (h *Handler) scopedOrg(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid organization id")
		return uuid.Nil, false
	}
	if id != access.OrganizationID && access.Scope != string(rbac.ScopeAll) {
		httpx.RespondError(w, httpx.ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, rbac.ErrDuplicateCode):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		h.logger.Error("organization request", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
