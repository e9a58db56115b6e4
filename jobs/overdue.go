package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rukunwarga/rukun/internal/jobs"
)

const defaultOverdueLimit = 500

// OverdueMarker flags unpaid payments past due.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, limit int) (int, error)
}

// MarkOverdueJob runs the periodic overdue sweep.
type MarkOverdueJob struct {
	Payments OverdueMarker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewMarkOverdueJob wires the handler.
func NewMarkOverdueJob(payments OverdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *MarkOverdueJob {
	return &MarkOverdueJob{Payments: payments, Logger: logger, Metrics: metrics}
}

// Handle processes TaskPaymentsMarkOverdue tasks.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Payments == nil {
		return errors.New("mark overdue: handler not configured")
	}
	var payload MarkOverduePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("mark overdue: decode payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultOverdueLimit
	}
	tracker := j.Metrics.Track(TaskPaymentsMarkOverdue)
	defer func() { err = tracker.End(err) }()

	flagged, err := j.Payments.MarkOverdue(ctx, payload.Limit)
	j.Metrics.AddRecords(TaskPaymentsMarkOverdue, "update", flagged)
	logger := j.log().With(slog.Int("flagged", flagged), slog.Int("limit", payload.Limit))
	if err != nil {
		logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	if flagged == payload.Limit {
		logger.Warn("overdue sweep hit its limit, remaining rows wait for the next run")
		return nil
	}
	logger.Info("overdue sweep finished")
	return nil
}

func (j *MarkOverdueJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
