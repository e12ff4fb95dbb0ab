package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/repository"
)

type userRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository creates an in-process credential store.
func NewUserRepository() repository.UserRepository {
	return &userRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *userRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *userRepository) Create(_ context.Context, user *domain.User) error {
	if user == nil || user.Email == "" {
		return domain.ErrInvalidPayload
	}
	email := domain.NormalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[email]; exists {
		return domain.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.Email = email
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	r.byID[user.ID] = &cp
	r.byEmail[email] = user.ID
	return nil
}

func (r *userRepository) UpdateProfile(_ context.Context, id string, patch domain.ProfilePatch) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	next := *user
	if err := patch.Apply(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now()
	r.byID[id] = &next
	cp := next
	return &cp, nil
}
