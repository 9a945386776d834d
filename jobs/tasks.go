package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMarkOverdue flips open invoices past their due date to overdue.
	TaskMarkOverdue = "ledger:invoices.mark_overdue"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "platform:idempotency.cleanup"
	// TaskRapInvalidate drops the cached Rapaport tables.
	TaskRapInvalidate = "rap:tables.invalidate"
)

// DefaultIdempotencyRetention is how long processed keys are kept.
const DefaultIdempotencyRetention = 72 * time.Hour

// MarkOverduePayload pins the sweep to a calendar day. An empty AsOf means
// "whenever the task runs".
type MarkOverduePayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// IdempotencyCleanupPayload carries the retention window in hours.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewMarkOverdueTask constructs the overdue sweep task. A zero asOf leaves the
// date to the worker clock, which is what the cron entry wants.
func NewMarkOverdueTask(asOf time.Time) (*asynq.Task, error) {
	payload := MarkOverduePayload{}
	if !asOf.IsZero() {
		payload.AsOf = asOf.UTC().Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMarkOverdue, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs the idempotency purge task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = DefaultIdempotencyRetention
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// NewRapInvalidateTask constructs the Rapaport cache invalidation task.
func NewRapInvalidateTask() *asynq.Task {
	return asynq.NewTask(TaskRapInvalidate, nil, asynq.Queue(QueueDefault))
}
