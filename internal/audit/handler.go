package audit

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/platform/httpx"
	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Handler menyajikan audit timeline lewat HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.RequireBoth(shared.ModuleIAM, shared.PermAuditView)))
		r.Get("/decisions", h.timeline)
		r.Get("/decisions/export", h.export)
	})
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.scopedFilters(w, r)
	if !ok {
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// export menulis hasil timeline sebagai CSV.
func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, ok := h.scopedFilters(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="auth-decisions.csv"`)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"at", "principal_id", "organization_id", "allowed", "reason", "module", "permission", "resource"})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.At.Format(time.RFC3339),
			row.PrincipalID.String(),
			row.OrganizationID.String(),
			strconv.FormatBool(row.Allowed),
			row.Reason,
			row.Module,
			row.Permission,
			row.Resource,
		})
	}
	cw.Flush()
}

// scopedFilters mem-parse filter query dan memagari hasilnya ke tenant milik
// pemanggil. Hanya scope all yang boleh membaca keputusan lintas tenant.
func (h *Handler) scopedFilters(w http.ResponseWriter, r *http.Request) (TimelineFilters, bool) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return TimelineFilters{}, false
	}
	access, ok := shared.AccessFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrForbidden)
		return TimelineFilters{}, false
	}
	if access.Scope != string(rbac.ScopeAll) {
		filters.OrganizationID = access.OrganizationID
	}
	return filters, true
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	var filters TimelineFilters
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errInvalidTime("from")
		}
		filters.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errInvalidTime("to")
		}
		filters.To = t
	}
	if v := q.Get("principal_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filters, errInvalidTime("principal_id")
		}
		filters.PrincipalID = id
	}
	if v := q.Get("organization_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filters, errInvalidTime("organization_id")
		}
		filters.OrganizationID = id
	}
	switch v := q.Get("outcome"); v {
	case "", "allowed", "denied":
		filters.Outcome = v
	default:
		return filters, errInvalidTime("outcome")
	}
	filters.Reason = q.Get("reason")
	filters.Permission = q.Get("permission")
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters, nil
}

type filterError string

func (e filterError) Error() string { return "invalid filter value: " + string(e) }

func errInvalidTime(field string) error { return filterError(field) }
