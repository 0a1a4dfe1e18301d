package audit

import (
	"context"
	"log/slog"

	"github.com/gatehouse-iam/gatehouse/internal/rbac"
	"github.com/gatehouse-iam/gatehouse/jobs"
)

// Recorder forwards authorization decisions to the job queue. Enqueue
// failures are logged and swallowed: the decision path must never wait on or
// fail because of audit persistence.
type Recorder struct {
	enqueue func(ctx context.Context, payload jobs.DecisionPayload) error
	logger  *slog.Logger
}

// NewRecorder builds a Recorder on top of the jobs client.
func NewRecorder(client *jobs.Client, logger *slog.Logger) *Recorder {
	return &Recorder{
		enqueue: func(ctx context.Context, payload jobs.DecisionPayload) error {
			_, err := client.EnqueueDecision(ctx, payload)
			return err
		},
		logger: logger,
	}
}

// Decision implements the authorization audit sink. The queue write reuses
// the request context but survives its cancellation.
func (r *Recorder) Decision(ctx context.Context, rec rbac.DecisionRecord) {
	payload := jobs.DecisionPayload{
		PrincipalID: rec.PrincipalID,
		Allowed:     rec.Allowed,
		Reason:      string(rec.Reason),
		Module:      rec.Requirement.Module,
		Permission:  rec.Requirement.Permission,
		Resource:    rec.Resource,
		At:          rec.At,
	}
	if err := r.enqueue(context.WithoutCancel(ctx), payload); err != nil {
		r.logger.Warn("enqueue decision record",
			slog.String("principal_id", rec.PrincipalID.String()),
			slog.Any("error", err))
	}
}

var _ rbac.AuditSink = (*Recorder)(nil)
