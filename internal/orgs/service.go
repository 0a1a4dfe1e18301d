package orgs

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	List(ctx context.Context, limit, offset int, only uuid.UUID) ([]rbac.Organization, int, error)
	Get(ctx context.Context, id uuid.UUID) (rbac.Organization, error)
	Create(ctx context.Context, org rbac.Organization) error
	Update(ctx context.Context, id uuid.UUID, name string, settings map[string]any) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// Service handles organization business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns a page of organizations with pagination metadata. only
// restricts the listing to a single organization; uuid.Nil lists all.
func (s *Service) List(ctx context.Context, page, perPage int, only uuid.UUID) ([]rbac.Organization, shared.Pagination, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	orgs, total, err := s.repo.List(ctx, perPage, (page-1)*perPage, only)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orgs, shared.NewPagination(page, perPage, total), nil
}

// Get fetches one organization.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (rbac.Organization, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new tenant.
func (s *Service) Create(ctx context.Context, code, name string, settings map[string]any) (rbac.Organization, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return rbac.Organization{}, errors.New("orgs: code and name required")
	}
	org := rbac.Organization{
		ID:       uuid.New(),
		Code:     code,
		Name:     name,
		Settings: settings,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return rbac.Organization{}, err
	}
	return org, nil
}

// Update changes display name and settings.
func (s *Service) Update(ctx context.Context, id uuid.UUID, name string, settings map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("orgs: name required")
	}
	return s.repo.Update(ctx, id, name, settings)
}

// Delete soft-deletes the tenant.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.SoftDelete(ctx, id)
}
