package catalog

import (
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

// Handler manages the module and permission catalog endpoints. Mutations go
// through the rbac service so every write bumps the system-wide version.
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

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermCatalogView)))
		r.Get("/modules", h.listModules)
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermCatalogEdit)))
		r.Put("/modules", h.ensureModule)
		r.Put("/permissions", h.ensurePermission)
		r.Delete("/permissions/{id}", h.deletePermission)
	})
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	modules, err := h.repo.ListModules(r.Context())
	if err != nil {
		h.logger.Error("list modules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, modules)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.repo.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type modulePayload struct {
	Code     string `json:"code" validate:"required,max=50"`
	Name     string `json:"name" validate:"required,max=100"`
	Ordering int    `json:"ordering"`
}

func (h *Handler) ensureModule(w http.ResponseWriter, r *http.Request) {
	var payload modulePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code and name required")
		return
	}
	module, err := h.service.EnsureModule(r.Context(), payload.Code, payload.Name, payload.Ordering)
	if err != nil {
		h.logger.Error("ensure module", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, module)
}

type permissionPayload struct {
	ModuleID    string `json:"module_id" validate:"required,uuid"`
	Code        string `json:"code" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	Action      string `json:"action" validate:"required,oneof=create read update delete approve export import execute"`
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "module_id, code, name, and a valid action required")
		return
	}
	moduleID, _ := uuid.Parse(payload.ModuleID)
	perm, err := h.service.EnsurePermission(r.Context(), moduleID, payload.Code, payload.Name, payload.Description, payload.Action)
	if err != nil {
		if errors.Is(err, rbac.ErrDuplicateCode) {
			httpx.RespondError(w, httpx.ErrDuplicate)
			return
		}
		h.logger.Error("ensure permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid permission id")
		return
	}
	if err := h.service.DeletePermission(r.Context(), id); err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("delete permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
