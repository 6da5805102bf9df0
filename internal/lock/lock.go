package lock

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrHeld      = errors.New("lock is held by another instance")
	ErrNotHolder = errors.New("lock expired or is held by another instance")
)

const releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// Locker is a single Redis key lock. Only the instance that set value may
// release it.
type Locker struct {
	client redis.Cmdable
	key    string
	value  string
}

func NewLocker(client redis.Cmdable, key, value string) *Locker {
	return &Locker{client: client, key: key, value: value}
}

func (l *Locker) Acquire(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	return nil
}

func (l *Locker) Release(ctx context.Context) error {
	res, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if res == int64(0) {
		return ErrNotHolder
	}
	return nil
}

// Run calls fn while holding the lock. It returns ErrHeld without calling fn
// when another instance holds it.
func (l *Locker) Run(ctx context.Context, ttl time.Duration, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, ttl); err != nil {
		return err
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("cannot release lock", "key", l.key, "error", err)
		}
	}()
	return fn(ctx)
}
