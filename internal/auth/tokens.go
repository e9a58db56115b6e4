package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned for unknown or expired tokens.
var ErrTokenNotFound = errors.New("auth: token not found")

// TokenStore keeps opaque bearer tokens in Redis.
type TokenStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewTokenStore constructs a TokenStore. ttl defaults to 12 hours.
func NewTokenStore(client redis.UniversalClient, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{client: client, ttl: ttl, prefix: "session:"}
}

// TTL returns the token lifetime.
func (s *TokenStore) TTL() time.Duration {
	return s.ttl
}

// Issue stores a fresh token for userID.
func (s *TokenStore) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), userID, s.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: store token: %w", err)
	}
	return token, time.Now().Add(s.ttl), nil
}

// Lookup returns the user id bound to token.
func (s *TokenStore) Lookup(ctx context.Context, token string) (string, error) {
	if _, err := uuid.Parse(token); err != nil {
		return "", ErrTokenNotFound
	}
	userID, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("auth: load token: %w", err)
	}
	return userID, nil
}

// Revoke deletes token. Unknown tokens are ignored.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.key(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("auth: revoke token: %w", err)
	}
	return nil
}

func (s *TokenStore) key(token string) string {
	return s.prefix + token
}
