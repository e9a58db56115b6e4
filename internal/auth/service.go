package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, Principal: user.Principal()}, nil
}

// Resolve turns a bearer token into a principal. The user row is re-read on
// every call so that deactivation and role changes apply immediately.
func (s *Service) Resolve(ctx context.Context, token string) (rbac.Principal, error) {
	userID, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return rbac.Principal{}, fmt.Errorf("%w: invalid or expired token", shared.ErrUnauthenticated)
		}
		return rbac.Principal{}, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rbac.Principal{}, fmt.Errorf("%w: unknown user", shared.ErrUnauthenticated)
		}
		return rbac.Principal{}, err
	}
	if !user.IsActive {
		return rbac.Principal{}, fmt.Errorf("%w: user inactive", shared.ErrUnauthenticated)
	}
	return user.Principal(), nil
}

// Logout revokes a token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
