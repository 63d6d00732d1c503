package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

const (
	lockKeyPrefix    = "survey:submit-lock:"
	lockPollInterval = 25 * time.Millisecond
	maxRedisRetries  = 3
	initialBackoff   = 100 * time.Millisecond
)

// releaseScript deletes the lock only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a services.Locker shared by every server instance using
// the same Redis. Locks expire after ttl if a holder dies.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	poll   time.Duration
	log    log.FieldLogger
}

var _ services.Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		poll:   lockPollInterval,
		log:    log.WithField("prefix", "redis-lock"),
	}
}

// OpenRedisLocker connects to addr and checks the connection.
func OpenRedisLocker(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisLocker(client, ttl), nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := lockKeyPrefix + key
	token := uuid.NewString()
	for {
		ok, err := retryRedisOperation(ctx, func() (bool, error) {
			return l.client.SetNX(ctx, k, token, l.ttl).Result()
		})
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{k}, token).Err(); err != nil {
				l.log.WithError(err).WithField("key", k).Warn("release lock")
			}
		})
	}, nil
}

func (l *RedisLocker) Close() error { return l.client.Close() }

func retryRedisOperation[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	var (
		lastErr error
		zero    T
	)
	for attempt := 0; attempt < maxRedisRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(initialBackoff * time.Duration(1<<uint(attempt-1))):
			}
		}
		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return zero, fmt.Errorf("redis operation failed after %d retries: %w", maxRedisRetries, lastErr)
}
