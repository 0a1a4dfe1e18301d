package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDecisionRecord persists one authorization decision to the
	// audit log.
	TaskTypeDecisionRecord = "audit:decision"
	// TaskTypeAuditCleanup prunes audit rows past their retention window.
	TaskTypeAuditCleanup = "audit:cleanup"
)

// DecisionPayload carries an authorization decision to the audit writer.
type DecisionPayload struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	Module      string    `json:"module,omitempty"`
	Permission  string    `json:"permission,omitempty"`
	Resource    string    `json:"resource,omitempty"`
	At          time.Time `json:"at"`
}

// NewDecisionRecordTask constructs an Asynq task for one decision.
func NewDecisionRecordTask(payload DecisionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDecisionRecord, data), nil
}

// CleanupPayload bounds the audit retention sweep.
type CleanupPayload struct {
	RetainDays int `json:"retain_days"`
}

// NewAuditCleanupTask constructs the periodic retention task.
func NewAuditCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditCleanup, data), nil
}
