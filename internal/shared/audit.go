package shared

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ActivityLog represents a record stored in activity_logs.
type ActivityLog struct {
	ActorID     string
	Action      string
	Description string
	IP          string
	UserAgent   string
	At          time.Time
}

// Activity actions written by the core.
const (
	ActionDocumentSubmit      = "DOCUMENT_SUBMIT"
	ActionDocumentTransition  = "DOCUMENT_TRANSITION"
	ActionAnnouncementCreate  = "ANNOUNCEMENT_CREATE"
	ActionAnnouncementPublish = "ANNOUNCEMENT_PUBLISH"
	ActionAnnouncementDelete  = "ANNOUNCEMENT_DELETE"
	ActionPaymentTransition   = "PAYMENT_TRANSITION"
	ActionDuesGenerate        = "DUES_BULK_GENERATE"
	ActionDuesDelete          = "DUES_BULK_DELETE"
)

// Validate checks the mandatory fields of an activity entry.
func (l ActivityLog) Validate() error {
	if strings.TrimSpace(l.ActorID) == "" || strings.TrimSpace(l.Action) == "" {
		return errors.New("activity log requires actor and action")
	}
	return nil
}

// InsertActivity appends the entry using db, which is usually the transaction
// that carries the state change it describes.
func InsertActivity(ctx context.Context, db DBTX, log ActivityLog) error {
	if db == nil {
		return errors.New("activity log: db not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := db.Exec(ctx, `INSERT INTO activity_logs (actor_id, action, description, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), COALESCE($6, NOW()))`,
		log.ActorID, log.Action, log.Description, log.IP, log.UserAgent, at)
	return err
}

// ActivityLogger writes standalone records into activity_logs.
type ActivityLogger struct {
	db DBTX
}

// NewActivityLogger returns a new ActivityLogger.
func NewActivityLogger(db DBTX) *ActivityLogger {
	return &ActivityLogger{db: db}
}

// Record persists the log entry outside of any caller transaction.
func (l *ActivityLogger) Record(ctx context.Context, log ActivityLog) error {
	if l == nil {
		return errors.New("activity logger not initialised")
	}
	return InsertActivity(ctx, l.db, log)
}
