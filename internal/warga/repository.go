// Package warga reads the resident directory that forms the universe of bulk
// finance runs.
package warga

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/rbac"
)

// Repository provides PostgreSQL backed resident lookups.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Accounts lists residents. Residents without an e-mail are returned with an
// empty Email and can never be excluded.
func (r *Repository) Accounts(ctx context.Context, activeOnly bool) ([]bulk.Account, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id::text, COALESCE(email, ''), is_active
FROM wargas
WHERE ($1::boolean IS FALSE OR is_active)
ORDER BY id`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("warga: list accounts: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (bulk.Account, error) {
		var a bulk.Account
		err := row.Scan(&a.ID, &a.Email, &a.Active)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("warga: scan accounts: %w", err)
	}
	return accounts, nil
}

// PrivilegedContacts returns e-mails of active users holding one of roles.
func (r *Repository) PrivilegedContacts(ctx context.Context, roles []rbac.RoleID) ([]string, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	names := lo.Map(roles, func(role rbac.RoleID, _ int) string { return string(role) })
	rows, err := r.pool.Query(ctx, `
SELECT email
FROM users
WHERE role = ANY($1) AND is_active AND email IS NOT NULL AND email <> ''`, names)
	if err != nil {
		return nil, fmt.Errorf("warga: list privileged contacts: %w", err)
	}
	contacts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("warga: scan privileged contacts: %w", err)
	}
	return contacts, nil
}

var _ bulk.Directory = (*Repository)(nil)
