package redis

import (
	"context"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/taskflow/repository"
)

type attemptRepository struct {
	client *redislib.Client
	prefix string
}

// NewLoginAttemptRepository creates a Redis-backed failed-login counter.
// Counters live under "login_attempts:<key>" and expire with their window.
func NewLoginAttemptRepository(client *redislib.Client) repository.LoginAttemptRepository {
	return &attemptRepository{
		client: client,
		prefix: "login_attempts:",
	}
}

func (r *attemptRepository) Count(ctx context.Context, key string) (int, error) {
	n, err := r.client.Get(ctx, r.key(key)).Int()
	if err != nil {
		if err == redislib.Nil {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (r *attemptRepository) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	if window <= 0 {
		window = 15 * time.Minute
	}
	k := r.key(key)
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

func (r *attemptRepository) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *attemptRepository) key(id string) string {
	return fmt.Sprintf("%s%s", r.prefix, id)
}
