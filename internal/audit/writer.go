package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-iam/gatehouse/internal/jobs"
	"github.com/gatehouse-iam/gatehouse/jobs"
)

// Writer menangani task antrean di sisi worker dan menulis ke PostgreSQL.
type Writer struct {
	repo    *PGRepository
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewWriter membuat writer untuk worker.
func NewWriter(repo *PGRepository, logger *slog.Logger) *Writer {
	return &Writer{repo: repo, logger: logger, metrics: jobmetrics.NewMetrics(nil)}
}

// HandleDecisionRecord memproses task audit:decision.
func (w *Writer) HandleDecisionRecord(ctx context.Context, t *asynq.Task) error {
	track := w.metrics.Track("audit_decision")
	var payload jobs.DecisionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return track.End(asynq.SkipRetry)
	}
	row := TimelineRow{
		At:          payload.At,
		PrincipalID: payload.PrincipalID,
		Allowed:     payload.Allowed,
		Reason:      payload.Reason,
		Module:      payload.Module,
		Permission:  payload.Permission,
		Resource:    payload.Resource,
	}
	if row.At.IsZero() {
		row.At = time.Now().UTC()
	}
	return track.End(w.repo.InsertDecision(ctx, row))
}

// HandleCleanup memproses task audit:cleanup.
func (w *Writer) HandleCleanup(ctx context.Context, t *asynq.Task) error {
	track := w.metrics.Track("audit_cleanup")
	var payload jobs.CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return track.End(asynq.SkipRetry)
	}
	retain := payload.RetainDays
	if retain <= 0 {
		retain = 90
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retain)
	deleted, err := w.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return track.End(err)
	}
	w.logger.Info("audit cleanup",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return track.End(nil)
}

// TaskHandlers mengembalikan registrasi handler untuk worker.
func (w *Writer) TaskHandlers() []jobs.TaskHandler {
	return []jobs.TaskHandler{
		{Type: jobs.TaskTypeDecisionRecord, Handler: w.HandleDecisionRecord},
		{Type: jobs.TaskTypeAuditCleanup, Handler: w.HandleCleanup},
	}
}
