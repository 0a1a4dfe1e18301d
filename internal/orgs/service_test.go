package orgs

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
)

type stubOrgRepo struct {
	orgs       []rbac.Organization
	created    []rbac.Organization
	deleted    []uuid.UUID
	listTotal  int
	lastLimit  int
	lastOffset int
	lastOnly   uuid.UUID
}

func (s *stubOrgRepo) List(ctx context.Context, limit, offset int, only uuid.UUID) ([]rbac.Organization, int, error) {
	s.lastLimit = limit
	s.lastOffset = offset
	s.lastOnly = only
	if only == uuid.Nil {
		return s.orgs, s.listTotal, nil
	}
	for _, org := range s.orgs {
		if org.ID == only {
			return []rbac.Organization{org}, 1, nil
		}
	}
	return nil, 0, nil
}

func (s *stubOrgRepo) Get(ctx context.Context, id uuid.UUID) (rbac.Organization, error) {
	for _, org := range s.orgs {
		if org.ID == id {
			return org, nil
		}
	}
	return rbac.Organization{}, rbac.ErrNotFound
}

func (s *stubOrgRepo) Create(ctx context.Context, org rbac.Organization) error {
	s.created = append(s.created, org)
	return nil
}

func (s *stubOrgRepo) Update(ctx context.Context, id uuid.UUID, name string, settings map[string]any) error {
	return nil
}

func (s *stubOrgRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestCreateNormalizesCode(t *testing.T) {
	repo := &stubOrgRepo{}
	svc := NewService(repo)

	org, err := svc.Create(context.Background(), "  acme ", " Acme Corp ", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if org.Code != "ACME" {
		t.Fatalf("code = %q, want ACME", org.Code)
	}
	if org.Name != "Acme Corp" {
		t.Fatalf("name = %q", org.Name)
	}
	if org.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected repo create call, got %d", len(repo.created))
	}
}

func TestCreateRequiresCodeAndName(t *testing.T) {
	svc := NewService(&stubOrgRepo{})
	if _, err := svc.Create(context.Background(), "", "Acme", nil); err == nil {
		t.Fatal("expected error for empty code")
	}
	if _, err := svc.Create(context.Background(), "ACME", "   ", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestListPagingDefaults(t *testing.T) {
	repo := &stubOrgRepo{listTotal: 45}
	svc := NewService(repo)

	_, paging, err := svc.List(context.Background(), 0, 0, uuid.Nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.lastLimit != 20 || repo.lastOffset != 0 {
		t.Fatalf("limit/offset = %d/%d, want 20/0", repo.lastLimit, repo.lastOffset)
	}
	if paging.TotalPages != 3 || paging.Total != 45 {
		t.Fatalf("pagination = %+v", paging)
	}

	if _, _, err := svc.List(context.Background(), 3, 10, uuid.Nil); err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if repo.lastOffset != 20 {
		t.Fatalf("offset = %d, want 20", repo.lastOffset)
	}
}

func TestUpdateRequiresName(t *testing.T) {
	svc := NewService(&stubOrgRepo{})
	if err := svc.Update(context.Background(), uuid.New(), "  ", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}
