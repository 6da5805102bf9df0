package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// OAuthStateStore keeps the per-handshake secret (the PKCE verifier, empty
// for providers without PKCE) keyed by the state nonce. Each entry can be
// taken once.
type OAuthStateStore interface {
	Save(ctx context.Context, nonce, verifier string) error
	Take(ctx context.Context, nonce string) (string, error)
}

type redisStateStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStateStore(rdb redis.Cmdable, ttl time.Duration) OAuthStateStore {
	return &redisStateStore{rdb: rdb, ttl: ttl}
}

func stateKey(nonce string) string {
	return "oauth:state:" + nonce
}

func (s *redisStateStore) Save(ctx context.Context, nonce, verifier string) error {
	return s.rdb.Set(ctx, stateKey(nonce), verifier, s.ttl).Err()
}

func (s *redisStateStore) Take(ctx context.Context, nonce string) (string, error) {
	verifier, err := s.rdb.GetDel(ctx, stateKey(nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrExpired
	}
	if err != nil {
		return "", err
	}
	return verifier, nil
}
