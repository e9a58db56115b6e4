// Package announcements manages neighborhood announcements and their audience.
package announcements

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
	"github.com/rukunwarga/rukun/internal/visibility"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id string) (Announcement, error)
	ListCandidates(ctx context.Context, q ListQuery) ([]Announcement, error)
}

// Notifier fans a published announcement out to its audience asynchronously.
type Notifier interface {
	EnqueueAnnouncementNotify(ctx context.Context, announcementID string) error
}

// Service orchestrates announcement flows.
type Service struct {
	repo     RepositoryPort
	access   *access.Facade
	notifier Notifier
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the service. notifier may be nil.
func NewService(repo RepositoryPort, facade *access.Facade, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		access:   facade,
		notifier: notifier,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a DRAFT announcement with its recipients.
func (s *Service) Create(ctx context.Context, p rbac.Principal, input CreateInput) (Announcement, error) {
	if err := s.access.Authorize(p, shared.CapAnnouncementsManage, access.Resource{}).Err(); err != nil {
		return Announcement{}, err
	}
	if err := s.validate.Struct(input); err != nil {
		return Announcement{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return Announcement{}, fmt.Errorf("%w: expiry must be in the future", shared.ErrValidation)
	}
	recipients, err := visibility.NormalizeRecipients(input.Recipients)
	if err != nil {
		return Announcement{}, err
	}
	draft := Announcement{
		Title:      strings.TrimSpace(input.Title),
		Body:       input.Body,
		Status:     lifecycle.AnnouncementDraft,
		AuthorID:   p.ID,
		ExpiresAt:  input.ExpiresAt,
		Recipients: recipients,
	}
	var created Announcement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, draft)
		if err != nil {
			return err
		}
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionAnnouncementCreate,
			Description: fmt.Sprintf("announcement %s drafted for %d recipient rule(s)", created.ID, len(recipients)),
		}))
	})
	if err != nil {
		return Announcement{}, err
	}
	return created, nil
}

// Publish moves a draft to PUBLISHED and enqueues the audience notification.
func (s *Service) Publish(ctx context.Context, p rbac.Principal, id string) (Announcement, error) {
	var published Announcement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		decision := s.access.Authorize(p, "", access.Resource{Transition: &access.TransitionRequest{
			Kind:      lifecycle.KindAnnouncement,
			Current:   current.Status,
			Requested: lifecycle.AnnouncementPublished,
		}})
		if err := decision.Err(); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.MarkPublished(ctx, id, at); err != nil {
			return err
		}
		published = current
		published.Status = lifecycle.AnnouncementPublished
		published.PublishedAt = &at
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionAnnouncementPublish,
			Description: fmt.Sprintf("announcement %s published", id),
			At:          at,
		}))
	})
	if err != nil {
		return Announcement{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.EnqueueAnnouncementNotify(ctx, id); err != nil {
			// The announcement is already visible; delivery is best effort.
			s.logger.Warn("enqueue announcement notify", slog.String("id", id), slog.Any("error", err))
		}
	}
	return published, nil
}

// Get returns the announcement when visible to p; otherwise not found.
func (s *Service) Get(ctx context.Context, p rbac.Principal, id string) (Announcement, error) {
	if !p.Authenticated() {
		return Announcement{}, shared.ErrUnauthenticated
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	b := a.Broadcast()
	if err := s.access.Authorize(p, shared.CapAnnouncementsView, access.Resource{Broadcast: &b}).Err(); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// ListVisible returns the announcements p may read, newest first.
func (s *Service) ListVisible(ctx context.Context, p rbac.Principal, limit int) ([]Announcement, error) {
	if err := s.access.Authorize(p, shared.CapAnnouncementsView, access.Resource{}).Err(); err != nil {
		return nil, err
	}
	now := s.now()
	resolver := s.access.Resolver()
	candidates, err := s.repo.ListCandidates(ctx, ListQuery{
		Principal: p,
		All:       resolver.Bypasses(p),
		Now:       now,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	return visibility.Filter(resolver, p, candidates, Announcement.Broadcast, now), nil
}

// Delete removes an announcement and its recipients.
func (s *Service) Delete(ctx context.Context, p rbac.Principal, id string) error {
	if err := s.access.Authorize(p, shared.CapAnnouncementsManage, access.Resource{}).Err(); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.InsertActivity(ctx, shared.ActivityFor(ctx, shared.ActivityLog{
			ActorID:     p.ID,
			Action:      shared.ActionAnnouncementDelete,
			Description: fmt.Sprintf("announcement %s deleted", id),
		}))
	})
}

// Audience loads a published announcement for notification delivery.
func (s *Service) Audience(ctx context.Context, id string) (Announcement, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	if a.Status != lifecycle.AnnouncementPublished {
		return Announcement{}, fmt.Errorf("%w: announcement %s is not published", shared.ErrConflict, id)
	}
	return a, nil
}
