package announcements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/db"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/internal/visibility"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, a Announcement) (Announcement, error)
	GetForUpdate(ctx context.Context, id string) (Announcement, error)
	MarkPublished(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	InsertActivity(ctx context.Context, log shared.ActivityLog) error
}

// ListQuery narrows candidate rows in SQL before the visibility predicate runs.
type ListQuery struct {
	Principal rbac.Principal
	// All disables the pushdown for bypass principals.
	All   bool
	Now   time.Time
	Limit int
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const selectAnnouncement = `SELECT a.id::text, a.title, a.body, a.status, a.author_id::text, a.expires_at, a.published_at, a.created_at
FROM announcements a`

// Get returns an announcement with its recipients.
func (r *Repository) Get(ctx context.Context, id string) (Announcement, error) {
	uid, err := shared.ParseID(id)
	if err != nil {
		return Announcement{}, err
	}
	a, err := scanAnnouncement(r.pool.QueryRow(ctx, selectAnnouncement+` WHERE a.id = $1`, uid))
	if err != nil {
		return Announcement{}, err
	}
	recipients, err := loadRecipients(ctx, r.pool, []string{a.ID})
	if err != nil {
		return Announcement{}, err
	}
	a.Recipients = recipients[a.ID]
	return a, nil
}

// ListCandidates returns announcements that may be visible to q.Principal.
// The SQL mirrors the visibility predicate; callers still re-check each row.
func (r *Repository) ListCandidates(ctx context.Context, q ListQuery) ([]Announcement, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if q.All {
		rows, err = r.pool.Query(ctx, selectAnnouncement+` ORDER BY a.created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx, selectAnnouncement+`
WHERE a.status = $1
  AND (a.expires_at IS NULL OR a.expires_at > $2)
  AND EXISTS (
    SELECT 1 FROM announcement_recipients r
    WHERE r.announcement_id = a.id
      AND (r.recipient_type = 'ALL'
        OR (r.recipient_type = 'ROLE' AND r.recipient_id = $3)
        OR (r.recipient_type = 'SPECIFIC' AND r.recipient_id = $4))
  )
ORDER BY a.published_at DESC NULLS LAST
LIMIT $5`, string(lifecycle.AnnouncementPublished), q.Now, string(q.Principal.Role), q.Principal.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("announcements: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Announcement, error) {
		return scanAnnouncement(row)
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return items, nil
	}
	recipients, err := loadRecipients(ctx, r.pool, lo.Map(items, func(a Announcement, _ int) string { return a.ID }))
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Recipients = recipients[items[i].ID]
	}
	return items, nil
}

func (t *txRepo) Insert(ctx context.Context, a Announcement) (Announcement, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO announcements (title, body, status, author_id, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text, created_at`, a.Title, a.Body, string(a.Status), a.AuthorID, a.ExpiresAt)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return Announcement{}, fmt.Errorf("announcements: insert: %w", err)
	}
	if len(a.Recipients) == 0 {
		return a, nil
	}
	announcementID, err := uuid.Parse(a.ID)
	if err != nil {
		return Announcement{}, fmt.Errorf("announcements: insert: unexpected id %q", a.ID)
	}
	copyRows := make([][]any, len(a.Recipients))
	for i, rc := range a.Recipients {
		var id *string
		if rc.ID != "" {
			v := rc.ID
			id = &v
		}
		copyRows[i] = []any{announcementID, string(rc.Type), id}
	}
	_, err = t.tx.CopyFrom(ctx,
		pgx.Identifier{"announcement_recipients"},
		[]string{"announcement_id", "recipient_type", "recipient_id"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return Announcement{}, fmt.Errorf("announcements: insert recipients: %w", err)
	}
	return a, nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (Announcement, error) {
	uid, err := shared.ParseID(id)
	if err != nil {
		return Announcement{}, err
	}
	a, err := scanAnnouncement(t.tx.QueryRow(ctx, selectAnnouncement+` WHERE a.id = $1 FOR UPDATE`, uid))
	if err != nil {
		return Announcement{}, err
	}
	recipients, err := loadRecipients(ctx, t.tx, []string{a.ID})
	if err != nil {
		return Announcement{}, err
	}
	a.Recipients = recipients[a.ID]
	return a, nil
}

func (t *txRepo) MarkPublished(ctx context.Context, id string, at time.Time) error {
	uid, err := shared.ParseID(id)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE announcements SET status = $2, published_at = $3 WHERE id = $1`,
		uid, string(lifecycle.AnnouncementPublished), at)
	if err != nil {
		return fmt.Errorf("announcements: publish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the announcement; recipients go with it (ON DELETE CASCADE).
func (t *txRepo) Delete(ctx context.Context, id string) error {
	uid, err := shared.ParseID(id)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM announcements WHERE id = $1`, uid)
	if err != nil {
		return fmt.Errorf("announcements: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertActivity(ctx context.Context, log shared.ActivityLog) error {
	return shared.InsertActivity(ctx, t.tx, log)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadRecipients(ctx context.Context, q querier, ids []string) (map[string][]visibility.Recipient, error) {
	uids := lo.FilterMap(ids, func(id string, _ int) (uuid.UUID, bool) {
		uid, err := uuid.Parse(id)
		return uid, err == nil
	})
	rows, err := q.Query(ctx, `SELECT announcement_id::text, recipient_type, COALESCE(recipient_id, '')
FROM announcement_recipients
WHERE announcement_id = ANY($1::uuid[])
ORDER BY id`, uids)
	if err != nil {
		return nil, fmt.Errorf("announcements: load recipients: %w", err)
	}
	defer rows.Close()
	out := make(map[string][]visibility.Recipient, len(ids))
	for rows.Next() {
		var (
			announcementID string
			rc             visibility.Recipient
			kind           string
		)
		if err := rows.Scan(&announcementID, &kind, &rc.ID); err != nil {
			return nil, fmt.Errorf("announcements: scan recipient: %w", err)
		}
		rc.Type = visibility.RecipientType(kind)
		out[announcementID] = append(out[announcementID], rc)
	}
	return out, rows.Err()
}

func scanAnnouncement(row pgx.Row) (Announcement, error) {
	var (
		a      Announcement
		status string
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Body, &status, &a.AuthorID, &a.ExpiresAt, &a.PublishedAt, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Announcement{}, shared.ErrNotFound
		}
		return Announcement{}, fmt.Errorf("announcements: scan: %w", err)
	}
	a.Status = lifecycle.State(status)
	return a, nil
}
