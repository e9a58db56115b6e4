// Package documents manages resident document requests and their review.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rukunwarga/rukun/internal/access"
	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Request, error)
}

// Config tunes Service.
type Config struct {
	RejectReasonMinLen int
}

// Service orchestrates document request flows.
type Service struct {
	repo      RepositoryPort
	access    *access.Facade
	validate  *validator.Validate
	minReason int
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the service.
func NewService(repo RepositoryPort, facade *access.Facade, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	minReason := cfg.RejectReasonMinLen
	if minReason <= 0 {
		minReason = 10
	}
	return &Service{
		repo:      repo,
		access:    facade,
		validate:  validator.New(),
		minReason: minReason,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit files a new PENDING request on behalf of p.
func (s *Service) Submit(ctx context.Context, p rbac.Principal, input SubmitInput) (Request, error) {
	if err := s.access.Authorize(p, shared.CapDocumentsRequest, access.Resource{}).Err(); err != nil {
		return Request{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	def, ok := s.access.Machine().Definition(lifecycle.KindDocument)
	if !ok {
		return Request{}, fmt.Errorf("documents: lifecycle for %s missing", lifecycle.KindDocument)
	}
	req := Request{
		RequesterID: p.ID,
		WargaID:     input.WargaID,
		Type:        strings.TrimSpace(input.Type),
		Purpose:     strings.TrimSpace(input.Purpose),
		Status:      def.Initial,
	}
	var created Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, req)
		if err != nil {
			return err
		}
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionDocumentSubmit,
			Description: fmt.Sprintf("document request %s (%s) submitted", created.ID, created.Type),
		}))
	})
	if err != nil {
		return Request{}, err
	}
	return created, nil
}

// Review applies an approval, rejection or completion. The row is locked for
// the duration of the check so concurrent reviewers cannot both succeed.
func (s *Service) Review(ctx context.Context, p rbac.Principal, id string, input ReviewInput) (Request, error) {
	if !p.Authenticated() {
		return Request{}, shared.ErrUnauthenticated
	}
	if err := s.validate.Struct(input); err != nil {
		return Request{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	target := lifecycle.State(strings.ToUpper(strings.TrimSpace(string(input.Target))))
	reason := strings.TrimSpace(input.Reason)
	if target == lifecycle.DocumentRejected && len([]rune(reason)) < s.minReason {
		return Request{}, fmt.Errorf("%w: rejection reason must be at least %d characters", shared.ErrValidation, s.minReason)
	}
	if target != lifecycle.DocumentRejected {
		reason = ""
	}

	var updated Request
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		decision := s.access.Authorize(p, "", access.Resource{Transition: &access.TransitionRequest{
			Kind:      lifecycle.KindDocument,
			Current:   current.Status,
			Requested: target,
		}})
		if err := decision.Err(); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.UpdateReview(ctx, id, target, reason, p.ID, at); err != nil {
			return err
		}
		updated = current
		updated.Status = target
		updated.RejectReason = reason
		updated.ReviewedBy = p.ID
		updated.ReviewedAt = &at
		updated.UpdatedAt = at
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionDocumentTransition,
			Description: fmt.Sprintf("document request %s %s -> %s", id, decision.Transition.From, decision.Transition.To),
			At:          at,
		}))
	})
	if err != nil {
		s.logger.Debug("document review refused", slog.String("id", id), slog.Any("error", err))
		return Request{}, err
	}
	s.logger.Info("document reviewed", slog.String("id", id), slog.String("status", string(target)), slog.String("actor", p.ID))
	return updated, nil
}

// Get returns a request to staff holding view:documents or to its requester.
// Anyone else gets not found.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id string) (Request, error) {
	if !p.Authenticated() {
		return Request{}, shared.ErrUnauthenticated
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if req.RequesterID == p.ID {
		return req, nil
	}
	if !s.access.Authorize(p, shared.CapDocumentsView, access.Resource{}).Allowed() {
		return Request{}, shared.ErrNotFound
	}
	return req, nil
}
