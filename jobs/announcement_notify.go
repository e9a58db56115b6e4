package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/rukunwarga/rukun/internal/announcements"
	jobmetrics "github.com/rukunwarga/rukun/internal/jobs"
)

// AudienceLoader returns a published announcement with its recipients.
type AudienceLoader interface {
	Audience(ctx context.Context, id string) (announcements.Announcement, error)
}

// AnnouncementNotifyJob delivers a published announcement. Delivery channels
// are not wired yet, so the job records the computed audience in the log.
type AnnouncementNotifyJob struct {
	Announcements AudienceLoader
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewAnnouncementNotifyJob wires the handler.
func NewAnnouncementNotifyJob(loader AudienceLoader, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnnouncementNotifyJob {
	return &AnnouncementNotifyJob{Announcements: loader, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAnnouncementNotify tasks.
func (j *AnnouncementNotifyJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Announcements == nil {
		return errors.New("announcement notify: handler not configured")
	}
	var payload AnnouncementNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.AnnouncementID == "" {
		return fmt.Errorf("announcement notify: decode payload: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskAnnouncementNotify)
	defer func() { err = tracker.End(err) }()

	a, err := j.Announcements.Audience(ctx, payload.AnnouncementID)
	if err != nil {
		return permanent(err)
	}
	logger := j.log().With(slog.String("announcement_id", a.ID), slog.String("title", a.Title))
	if len(a.Recipients) == 0 {
		logger.Warn("announcement has no recipients, nothing to deliver")
		return nil
	}
	j.Metrics.AddRecords(TaskAnnouncementNotify, "notify", len(a.Recipients))
	for _, r := range a.Recipients {
		logger.Debug("announcement recipient", slog.String("recipient_type", string(r.Type)), slog.String("recipient_id", r.ID))
	}
	logger.Info("announcement delivered", slog.Int("recipients", len(a.Recipients)))
	return nil
}

func (j *AnnouncementNotifyJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
