package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubTimelineRepo struct {
	rows       []TimelineRow
	lastOffset int
	lastLimit  int
	lastFilter TimelineFilters
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter = filters
	s.lastOffset = offset
	s.lastLimit = limit
	if limit < len(s.rows) {
		return s.rows[:limit], nil
	}
	return s.rows, nil
}

func (s *stubTimelineRepo) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastFilter = filters
	return s.rows, nil
}

func mockRow(at string, allowed bool, reason string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, PrincipalID: uuid.New(), Allowed: allowed, Reason: reason}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", false, "missing_permission"),
		mockRow("2026-03-09T09:00:00Z", true, ""),
		mockRow("2026-03-08T08:00:00Z", false, "account_inactive"),
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page, got %+v", result.Paging)
	}
	if repo.lastLimit != 3 {
		t.Fatalf("expected limit pageSize+1, got %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastOffset)
	}
}

func TestServiceTimelineDefaultsAndCaps(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	if _, err := svc.Timeline(context.Background(), TimelineFilters{Page: -5, PageSize: 500}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastLimit != 51 {
		t.Fatalf("page size should cap at 50, got limit %d", repo.lastLimit)
	}
	if repo.lastOffset != 0 {
		t.Fatalf("negative page should clamp to 1, got offset %d", repo.lastOffset)
	}
}

func TestServiceExportSkipsPaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow("2026-03-10T10:00:00Z", true, ""),
		mockRow("2026-03-09T09:00:00Z", false, "missing_module"),
	}}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{Outcome: "denied"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected all rows, got %d", len(rows))
	}
	if repo.lastFilter.Outcome != "denied" {
		t.Fatalf("filter not forwarded: %+v", repo.lastFilter)
	}
}

func TestServiceTimelineWithoutRepoFails(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); err == nil {
		t.Fatal("expected error without repository")
	}
}
