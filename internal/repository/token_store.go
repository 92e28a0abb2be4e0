package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore tracks revoked refresh tokens by jti until they would have expired anyway.
type TokenStore struct {
	redis *redis.Client
}

func NewTokenStore(redisClient *redis.Client) *TokenStore {
	return &TokenStore{redis: redisClient}
}

func revokedKey(jti string) string {
	return "refresh_revoked:" + jti
}

func (s *TokenStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.redis.Set(ctx, revokedKey(jti), "1", ttl).Err()
}

func (s *TokenStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.redis.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
