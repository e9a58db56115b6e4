package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/db"
	"github.com/rukunwarga/rukun/internal/shared"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, req Request) (Request, error)
	GetForUpdate(ctx context.Context, id string) (Request, error)
	UpdateReview(ctx context.Context, id string, status lifecycle.State, reason, reviewer string, at time.Time) error
	InsertActivity(ctx context.Context, log shared.ActivityLog) error
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

const selectRequest = `SELECT id::text, requester_id::text, warga_id::text, type, purpose, status,
COALESCE(reject_reason, ''), COALESCE(reviewed_by::text, ''), reviewed_at, created_at, updated_at
FROM document_requests`

// Get returns a request by id.
func (r *Repository) Get(ctx context.Context, id string) (Request, error) {
	uid, err := shared.ParseID(id)
	if err != nil {
		return Request{}, err
	}
	return scanRequest(r.pool.QueryRow(ctx, selectRequest+` WHERE id = $1`, uid))
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (Request, error) {
	uid, err := shared.ParseID(id)
	if err != nil {
		return Request{}, err
	}
	return scanRequest(t.tx.QueryRow(ctx, selectRequest+` WHERE id = $1 FOR UPDATE`, uid))
}

func (t *txRepo) Insert(ctx context.Context, req Request) (Request, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO document_requests (requester_id, warga_id, type, purpose, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text, created_at, updated_at`, req.RequesterID, req.WargaID, req.Type, req.Purpose, string(req.Status))
	if err := row.Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return Request{}, fmt.Errorf("documents: insert: %w", err)
	}
	return req, nil
}

func (t *txRepo) UpdateReview(ctx context.Context, id string, status lifecycle.State, reason, reviewer string, at time.Time) error {
	uid, err := shared.ParseID(id)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE document_requests
SET status = $2, reject_reason = NULLIF($3, ''), reviewed_by = $4, reviewed_at = $5, updated_at = $5
WHERE id = $1`, uid, string(status), reason, reviewer, at)
	if err != nil {
		return fmt.Errorf("documents: update review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertActivity(ctx context.Context, log shared.ActivityLog) error {
	return shared.InsertActivity(ctx, t.tx, log)
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req    Request
		status string
	)
	err := row.Scan(&req.ID, &req.RequesterID, &req.WargaID, &req.Type, &req.Purpose, &status,
		&req.RejectReason, &req.ReviewedBy, &req.ReviewedAt, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, shared.ErrNotFound
		}
		return Request{}, fmt.Errorf("documents: scan: %w", err)
	}
	req.Status = lifecycle.State(status)
	return req, nil
}
