package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/taskflow/repository"
)

type attemptWindow struct {
	count     int
	expiresAt time.Time
}

type attemptRepository struct {
	mu      sync.Mutex
	entries map[string]attemptWindow
	now     func() time.Time
}

// NewLoginAttemptRepository counts failed logins in process memory.
func NewLoginAttemptRepository() repository.LoginAttemptRepository {
	return &attemptRepository{
		entries: make(map[string]attemptWindow),
		now:     time.Now,
	}
}

func (r *attemptRepository) Count(_ context.Context, key string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(key).count, nil
}

func (r *attemptRepository) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.live(key)
	if entry.count == 0 {
		entry.expiresAt = r.now().Add(window)
	}
	entry.count++
	r.entries[key] = entry
	return entry.count, nil
}

func (r *attemptRepository) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

// live must be called with mu held.
func (r *attemptRepository) live(key string) attemptWindow {
	entry, ok := r.entries[key]
	if !ok {
		return attemptWindow{}
	}
	if !r.now().Before(entry.expiresAt) {
		delete(r.entries, key)
		return attemptWindow{}
	}
	return entry
}
