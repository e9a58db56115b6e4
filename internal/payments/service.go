// Package payments manages resident dues: per-payment status changes and
// bulk generation or removal of a period's dues.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rukunwarga/rukun/internal/access"
	"github.com/rukunwarga/rukun/internal/bulk"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/platform/cache"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListPendingDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)
}

// BulkRunner executes bulk operations.
type BulkRunner interface {
	Run(ctx context.Context, p rbac.Principal, req bulk.Request) (bulk.Result, error)
}

// Locker guards a bulk period against concurrent runs.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

// IdempotencyPort records processed bulk keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// AuditPort writes activity entries outside a transaction.
type AuditPort interface {
	Record(ctx context.Context, log shared.ActivityLog) error
}

// Config tunes Service.
type Config struct {
	LockTTL time.Duration
	// System is the principal used by scheduled reconciliation.
	System rbac.Principal
}

// Service orchestrates payment flows.
type Service struct {
	repo        RepositoryPort
	access      *access.Facade
	engine      BulkRunner
	locker      Locker
	idempotency IdempotencyPort
	audit       AuditPort
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the service. locker and idempotency may be nil.
func NewService(repo RepositoryPort, facade *access.Facade, engine BulkRunner, locker Locker, idem IdempotencyPort, audit AuditPort, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if !cfg.System.Authenticated() {
		cfg.System = rbac.Principal{ID: "system", Role: rbac.RoleSuperAdmin}
	}
	return &Service{
		repo:        repo,
		access:      facade,
		engine:      engine,
		locker:      locker,
		idempotency: idem,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// UpdateStatus moves a PENDING payment to PAID, OVERDUE or CANCELLED.
func (s *Service) UpdateStatus(ctx context.Context, p rbac.Principal, id string, target lifecycle.State) (Payment, error) {
	var updated Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		decision := s.access.Authorize(p, "", access.Resource{Transition: &access.TransitionRequest{
			Kind:      lifecycle.KindPayment,
			Current:   current.Status,
			Requested: target,
		}})
		if err := decision.Err(); err != nil {
			return err
		}
		var paidAt *time.Time
		if target == lifecycle.PaymentPaid {
			at := s.now().UTC()
			paidAt = &at
		}
		if err := tx.UpdateStatus(ctx, id, target, paidAt); err != nil {
			return err
		}
		updated = current
		updated.Status = target
		if paidAt != nil {
			updated.PaidAt = paidAt
		}
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionPaymentTransition,
			Description: fmt.Sprintf("payment %s %s -> %s", id, decision.Transition.From, decision.Transition.To),
		}))
	})
	if err != nil {
		return Payment{}, err
	}
	return updated, nil
}

// GenerateDues creates one payment per eligible resident. Runs for the same
// due month are serialized by a redis lock.
func (s *Service) GenerateDues(ctx context.Context, p rbac.Principal, input GenerateInput) (BulkResult, error) {
	if err := s.authorizeBulk(p); err != nil {
		return BulkResult{}, err
	}
	if input.Template.DueDate.IsZero() {
		return BulkResult{}, fmt.Errorf("%w: due date required", shared.ErrValidation)
	}
	due := input.Template.DueDate
	release, err := s.lock(ctx, due.Year(), int(due.Month()))
	if err != nil {
		return BulkResult{}, err
	}
	defer release()

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, shared.IdempotencyDuesGenerate); err != nil {
			return BulkResult{}, err
		}
	}
	tmpl := input.Template
	res, err := s.engine.Run(ctx, p, bulk.Request{Op: bulk.OpCreate, Template: &tmpl})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, input.IdempotencyKey, shared.IdempotencyDuesGenerate); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return BulkResult{}, err
	}
	s.record(ctx, shared.ActivityLog{
		ActorID:     p.ID,
		Action:      shared.ActionDuesGenerate,
		Description: fmt.Sprintf("generated %d %s payment(s) due %s, %d account(s) excluded", res.Affected, tmpl.Type, due.Format("2006-01-02"), res.Excluded),
	})
	return BulkResult{Affected: res.Affected, Excluded: res.Excluded}, nil
}

// DeleteDues removes the payments of a period.
func (s *Service) DeleteDues(ctx context.Context, p rbac.Principal, scope bulk.Scope) (BulkResult, error) {
	if err := s.authorizeBulk(p); err != nil {
		return BulkResult{}, err
	}
	year, month := scope.Year, scope.Month
	if scope.Date != nil {
		year, month = scope.Date.Year(), int(scope.Date.Month())
	}
	release, err := s.lock(ctx, year, month)
	if err != nil {
		return BulkResult{}, err
	}
	defer release()

	res, err := s.engine.Run(ctx, p, bulk.Request{Op: bulk.OpDelete, Scope: &scope})
	if err != nil {
		return BulkResult{}, err
	}
	s.record(ctx, shared.ActivityLog{
		ActorID:     p.ID,
		Action:      shared.ActionDuesDelete,
		Description: fmt.Sprintf("deleted %d payment(s) for %04d-%02d", res.Affected, year, month),
	})
	return BulkResult{Affected: res.Affected, Excluded: res.Excluded}, nil
}

// MarkOverdue flags PENDING payments due before the start of today as OVERDUE.
// It runs as the system principal and skips rows that changed concurrently.
func (s *Service) MarkOverdue(ctx context.Context, limit int) (int, error) {
	now := s.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	candidates, err := s.repo.ListPendingDueBefore(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}
	flagged := 0
	for _, payment := range candidates {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}
		_, err := s.UpdateStatus(ctx, s.cfg.System, payment.ID, lifecycle.PaymentOverdue)
		switch {
		case err == nil:
			flagged++
		case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotFound):
			continue
		default:
			return flagged, err
		}
	}
	return flagged, nil
}

func (s *Service) authorizeBulk(p rbac.Principal) error {
	return s.access.Authorize(p, shared.CapFinancesManage, access.Resource{}).Err()
}

func (s *Service) lock(ctx context.Context, year, month int) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Acquire(ctx, shared.DuesBulkLockKey(year, month), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("%w: a bulk run for %04d-%02d is in progress: %w", shared.ErrConflict, year, month, err)
		}
		return nil, err
	}
	return func() {
		// Release on a fresh context; the request one may already be cancelled.
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release bulk lock", slog.Any("error", err))
		}
	}, nil
}

func (s *Service) record(ctx context.Context, log shared.ActivityLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.ActivityFor(ctx, log)); err != nil {
		s.logger.Warn("record activity", slog.String("action", log.Action), slog.Any("error", err))
	}
}
