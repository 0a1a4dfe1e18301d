package audit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

func newTestAuditHandler(repo *stubTimelineRepo) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, NewService(repo), rbac.Middleware{})
}

func auditRequest(target string, access shared.Access) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return req.WithContext(shared.ContextWithAccess(req.Context(), access))
}

func TestTimelineScopedToCallerTenant(t *testing.T) {
	repo := &stubTimelineRepo{}
	h := newTestAuditHandler(repo)

	orgID := uuid.New()
	access := shared.Access{PrincipalID: uuid.New(), OrganizationID: orgID, Scope: string(rbac.ScopeOrganization)}
	rec := httptest.NewRecorder()
	h.timeline(rec, auditRequest("/decisions", access))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.lastFilter.OrganizationID != orgID {
		t.Fatalf("expected filter pinned to %s, got %s", orgID, repo.lastFilter.OrganizationID)
	}
}

func TestTimelineScopedIgnoresRequestedOrganization(t *testing.T) {
	repo := &stubTimelineRepo{}
	h := newTestAuditHandler(repo)

	orgID := uuid.New()
	foreign := uuid.New()
	access := shared.Access{PrincipalID: uuid.New(), OrganizationID: orgID, Scope: string(rbac.ScopeOrganization)}
	rec := httptest.NewRecorder()
	h.timeline(rec, auditRequest("/decisions?organization_id="+foreign.String(), access))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.lastFilter.OrganizationID != orgID {
		t.Fatalf("tenant caller must not pick a foreign org, filter = %s", repo.lastFilter.OrganizationID)
	}
}

func TestTimelineScopeAllSpansTenants(t *testing.T) {
	repo := &stubTimelineRepo{}
	h := newTestAuditHandler(repo)

	access := shared.Access{PrincipalID: uuid.New(), OrganizationID: uuid.New(), Scope: string(rbac.ScopeAll)}
	rec := httptest.NewRecorder()
	h.timeline(rec, auditRequest("/decisions", access))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.lastFilter.OrganizationID != uuid.Nil {
		t.Fatalf("scope all must not be pinned, filter = %s", repo.lastFilter.OrganizationID)
	}
}

func TestTimelineScopeAllPicksOrganization(t *testing.T) {
	repo := &stubTimelineRepo{}
	h := newTestAuditHandler(repo)

	target := uuid.New()
	access := shared.Access{PrincipalID: uuid.New(), OrganizationID: uuid.New(), Scope: string(rbac.ScopeAll)}
	rec := httptest.NewRecorder()
	h.timeline(rec, auditRequest("/decisions?organization_id="+target.String(), access))

	if repo.lastFilter.OrganizationID != target {
		t.Fatalf("expected filter %s, got %s", target, repo.lastFilter.OrganizationID)
	}
}

func TestTimelineWithoutAccessForbidden(t *testing.T) {
	h := newTestAuditHandler(&stubTimelineRepo{})

	rec := httptest.NewRecorder()
	h.timeline(rec, httptest.NewRequest(http.MethodGet, "/decisions", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestExportScopedToCallerTenant(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", false, "missing_permission"),
	}}
	h := newTestAuditHandler(repo)

	orgID := uuid.New()
	access := shared.Access{PrincipalID: uuid.New(), OrganizationID: orgID, Scope: string(rbac.ScopeOrganization)}
	rec := httptest.NewRecorder()
	h.export(rec, auditRequest("/decisions/export", access))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.lastFilter.OrganizationID != orgID {
		t.Fatalf("expected export filter pinned to %s, got %s", orgID, repo.lastFilter.OrganizationID)
	}
	header := strings.SplitN(rec.Body.String(), "\n", 2)[0]
	if !strings.Contains(header, "organization_id") {
		t.Fatalf("expected organization_id column, got %q", header)
	}
}
