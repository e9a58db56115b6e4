package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/cache"
	"github.com/rukunwarga/rukun/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDuesGenerate runs a bulk dues generation on behalf of an operator.
	TaskDuesGenerate = "dues:generate"
	// TaskPaymentsMarkOverdue sweeps PENDING payments past their due date.
	TaskPaymentsMarkOverdue = "payments:mark_overdue"
	// TaskAnnouncementNotify fans a published announcement out to its audience.
	TaskAnnouncementNotify = "announcement:notify"
)

// DuesGeneratePayload carries the operator and the template of a queued run.
type DuesGeneratePayload struct {
	ActorID        string          `json:"actor_id"`
	Type           string          `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description,omitempty"`
	DueDate        time.Time       `json:"due_date"`
	Status         lifecycle.State `json:"status,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// MarkOverduePayload bounds a single sweep.
type MarkOverduePayload struct {
	Limit int `json:"limit"`
}

// AnnouncementNotifyPayload names the published announcement.
type AnnouncementNotifyPayload struct {
	AnnouncementID string `json:"announcement_id"`
}

// NewDuesGenerateTask constructs an Asynq task for a dues run.
func NewDuesGenerateTask(payload DuesGeneratePayload) (*asynq.Task, error) {
	return newTask(TaskDuesGenerate, payload, asynq.MaxRetry(3))
}

// NewMarkOverdueTask constructs an Asynq task for the overdue sweep.
func NewMarkOverdueTask(limit int) (*asynq.Task, error) {
	return newTask(TaskPaymentsMarkOverdue, MarkOverduePayload{Limit: limit})
}

// NewAnnouncementNotifyTask constructs an Asynq task for announcement delivery.
func NewAnnouncementNotifyTask(announcementID string) (*asynq.Task, error) {
	return newTask(TaskAnnouncementNotify, AnnouncementNotifyPayload{AnnouncementID: announcementID}, asynq.MaxRetry(5))
}

func newTask(typename string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(typename, body, opts...), nil
}

// permanent marks domain failures that a retry cannot fix.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrUnauthenticated),
		errors.Is(err, shared.ErrNotFound),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, shared.ErrConflict):
		// lock contention clears on its own; illegal transitions never do
		if errors.Is(err, cache.ErrLockHeld) {
			return err
		}
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
