package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rukunwarga/rukun/internal/auth"
	"github.com/rukunwarga/rukun/internal/bulk"
	jobmetrics "github.com/rukunwarga/rukun/internal/jobs"
	"github.com/rukunwarga/rukun/internal/payments"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// UserFinder re-reads the operator who queued a run.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
}

// DuesGenerator runs the bulk generation.
type DuesGenerator interface {
	GenerateDues(ctx context.Context, p rbac.Principal, input payments.GenerateInput) (payments.BulkResult, error)
}

// DuesGenerateJob executes queued dues runs with the operator's current role.
type DuesGenerateJob struct {
	Users   UserFinder
	Dues    DuesGenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDuesGenerateJob wires the handler.
func NewDuesGenerateJob(users UserFinder, dues DuesGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *DuesGenerateJob {
	return &DuesGenerateJob{Users: users, Dues: dues, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDuesGenerate tasks.
func (j *DuesGenerateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Dues == nil || j.Users == nil {
		return errors.New("dues generate: handler not configured")
	}
	var payload DuesGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("dues generate: decode payload: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskDuesGenerate)
	defer func() { err = tracker.End(err) }()

	logger := j.log().With(
		slog.String("actor_id", payload.ActorID),
		slog.String("type", payload.Type),
		slog.String("due_date", payload.DueDate.Format("2006-01-02")),
	)

	user, err := j.Users.FindByID(ctx, payload.ActorID)
	if err != nil {
		return permanent(err)
	}
	if !user.IsActive {
		return permanent(fmt.Errorf("%w: operator %s is inactive", shared.ErrForbidden, user.ID))
	}
	res, err := j.Dues.GenerateDues(ctx, user.Principal(), payments.GenerateInput{
		Template: bulk.Template{
			Type:        payload.Type,
			Amount:      payload.Amount,
			Description: payload.Description,
			DueDate:     payload.DueDate,
			Status:      payload.Status,
		},
		IdempotencyKey: payload.IdempotencyKey,
	})
	if err != nil {
		logger.Warn("dues generation failed", slog.Any("error", err))
		return permanent(err)
	}
	j.Metrics.AddRecords(TaskDuesGenerate, string(bulk.OpCreate), res.Affected)
	logger.Info("dues generated", slog.Int("affected", res.Affected), slog.Int("excluded", res.Excluded))
	return nil
}

func (j *DuesGenerateJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
