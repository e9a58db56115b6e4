package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/db"
	"github.com/rukunwarga/rukun/internal/shared"
)

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id string) (Payment, error)
	UpdateStatus(ctx context.Context, id string, status lifecycle.State, paidAt *time.Time) error
	InsertActivity(ctx context.Context, log shared.ActivityLog) error
}

// Repository provides PostgreSQL backed persistence. It doubles as the bulk
// engine's Store.
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

const selectPayment = `SELECT id::text, warga_id::text, type, amount::text, COALESCE(description, ''), due_date, status, paid_at, created_at
FROM payments`

// ListPendingDueBefore returns PENDING payments whose due date is before cutoff.
func (r *Repository) ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, selectPayment+` WHERE status = $1 AND due_date < $2 ORDER BY due_date LIMIT $3`,
		string(lifecycle.PaymentPending), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("payments: list pending: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
}

// InsertBatch creates one payment per account with the same template.
func (r *Repository) InsertBatch(ctx context.Context, accountIDs []string, tmpl bulk.Template) (int, error) {
	amount := toNumeric(tmpl.Amount)
	var description *string
	if tmpl.Description != "" {
		description = &tmpl.Description
	}
	rows := make([][]any, 0, len(accountIDs))
	for _, id := range accountIDs {
		wargaID, err := uuid.Parse(id)
		if err != nil {
			return 0, fmt.Errorf("payments: insert batch: account id %q: %w", id, err)
		}
		rows = append(rows, []any{wargaID, tmpl.Type, amount, description, tmpl.DueDate, string(tmpl.Status)})
	}
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"payments"},
		[]string{"warga_id", "type", "amount", "description", "due_date", "status"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("payments: insert batch: %w", err)
	}
	return int(n), nil
}

// DeleteScoped removes the payments due within window, keeping those of
// excluded accounts.
func (r *Repository) DeleteScoped(ctx context.Context, window bulk.Window, filter bulk.Filter, excludeAccountIDs []string) (int, error) {
	excluded := lo.FilterMap(excludeAccountIDs, func(id string, _ int) (uuid.UUID, bool) {
		uid, err := uuid.Parse(id)
		return uid, err == nil
	})
	if excluded == nil {
		// A NULL array would make NOT (... = ANY(NULL)) filter out every row.
		excluded = []uuid.UUID{}
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM payments
WHERE due_date >= $1 AND due_date < $2
  AND ($3 = '' OR type = $3)
  AND ($4 = '' OR status = $4)
  AND NOT (warga_id = ANY($5::uuid[]))`,
		window.From, window.To, filter.Type, string(filter.Status), excluded)
	if err != nil {
		return 0, fmt.Errorf("payments: delete scoped: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (Payment, error) {
	uid, err := shared.ParseID(id)
	if err != nil {
		return Payment{}, err
	}
	return scanPayment(t.tx.QueryRow(ctx, selectPayment+` WHERE id = $1 FOR UPDATE`, uid))
}

func (t *txRepo) UpdateStatus(ctx context.Context, id string, status lifecycle.State, paidAt *time.Time) error {
	uid, err := shared.ParseID(id)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET status = $2, paid_at = COALESCE($3, paid_at), updated_at = NOW() WHERE id = $1`,
		uid, string(status), paidAt)
	if err != nil {
		return fmt.Errorf("payments: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertActivity(ctx context.Context, log shared.ActivityLog) error {
	return shared.InsertActivity(ctx, t.tx, log)
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p      Payment
		amount string
		status string
	)
	if err := row.Scan(&p.ID, &p.WargaID, &p.Type, &amount, &p.Description, &p.DueDate, &status, &p.PaidAt, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, shared.ErrNotFound
		}
		return Payment{}, fmt.Errorf("payments: scan: %w", err)
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Payment{}, fmt.Errorf("payments: amount %q: %w", amount, err)
	}
	p.Amount = dec
	p.Status = lifecycle.State(status)
	return p, nil
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

var _ bulk.Store = (*Repository)(nil)
