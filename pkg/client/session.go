package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/usecase/query"
)

const (
	keyToken = "token"
	keyUser  = "user"
)

// Session is the signed-in state on the consuming side: token, identity and
// the caller's task collection. Token, identity and tasks are always set or
// cleared together.
type Session struct {
	api    *Client
	store  Storage
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	token string
	user  *domain.UserSummary
	tasks []domain.Task
}

// NewSession loads any persisted identity from store. Call Restore to check
// it against the server before use.
func NewSession(api *Client, store Storage, log *zap.Logger) (*Session, error) {
	if store == nil {
		store = NewMemoryStorage()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{api: api, store: store, logger: log, now: time.Now}

	token, err := store.Get(keyToken)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	rawUser, err := store.Get(keyUser)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(token) == 0 || len(rawUser) == 0 {
		// a half-written identity is unusable
		if err := store.Delete(keyToken, keyUser); err != nil {
			return nil, err
		}
		return s, nil
	}
	var user domain.UserSummary
	if err := json.Unmarshal(rawUser, &user); err != nil {
		if err := store.Delete(keyToken, keyUser); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.token = string(token)
	s.user = &user
	return s, nil
}

// Restore validates a persisted token and loads the task collection. With no
// persisted token it returns domain.ErrUnauthorized.
func (s *Session) Restore(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return domain.ErrUnauthorized
	}
	user, err := s.api.Me(ctx, token)
	if err != nil {
		return s.check(token, err)
	}
	s.mu.Lock()
	if s.token == token {
		s.user = user
		err = s.persist(token, user)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Sync(ctx)
}

// Login exchanges credentials for a token, persists the identity and loads
// the caller's tasks.
func (s *Session) Login(ctx context.Context, email, password string) error {
	session, err := s.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.persist(session.Token, session.User); err != nil {
		s.mu.Unlock()
		return err
	}
	s.token = session.Token
	s.user = session.User
	s.tasks = nil
	s.mu.Unlock()
	return s.Sync(ctx)
}

// Register creates an account without signing in.
func (s *Session) Register(ctx context.Context, email, name, password string) (*domain.UserSummary, error) {
	return s.api.Register(ctx, email, name, password)
}

// Logout forgets the token, identity and tasks.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.tasks = nil
	return s.store.Delete(keyToken, keyUser)
}

// Sync replaces the local task collection with the server's.
func (s *Session) Sync(ctx context.Context) error {
	token := s.Token()
	if token == "" {
		return domain.ErrUnauthorized
	}
	tasks, err := s.api.ListTasks(ctx, token)
	if err != nil {
		return s.check(token, err)
	}
	s.mu.Lock()
	if s.token == token {
		s.tasks = tasks
	}
	s.mu.Unlock()
	return nil
}

// CreateTask creates a task and refreshes the collection.
func (s *Session) CreateTask(ctx context.Context, fields domain.TaskPatch) (*domain.Task, error) {
	return s.mutate(ctx, "create", func(token string) (*domain.Task, error) {
		return s.api.CreateTask(ctx, token, fields)
	})
}

func (s *Session) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	return s.mutate(ctx, "update", func(token string) (*domain.Task, error) {
		return s.api.UpdateTask(ctx, token, id, patch)
	})
}

func (s *Session) ToggleTask(ctx context.Context, id string) (*domain.Task, error) {
	return s.mutate(ctx, "toggle", func(token string) (*domain.Task, error) {
		return s.api.ToggleTask(ctx, token, id)
	})
}

func (s *Session) DeleteTask(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, "delete", func(token string) (*domain.Task, error) {
		return nil, s.api.DeleteTask(ctx, token, id)
	})
	return err
}

// UpdateProfile edits the signed-in user's profile and stores the result.
func (s *Session) UpdateProfile(ctx context.Context, patch domain.ProfilePatch) (*domain.UserSummary, error) {
	token := s.Token()
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	user, err := s.api.UpdateProfile(ctx, token, patch)
	if err != nil {
		return nil, s.check(token, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.user = user
		if err := s.persist(token, user); err != nil {
			return user, err
		}
	}
	return user, nil
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() *domain.UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

// Tasks returns a copy of the local collection.
func (s *Session) Tasks() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, 0, len(s.tasks))
	for i := range s.tasks {
		out = append(out, *s.tasks[i].Clone())
	}
	return out
}

// Filter applies mode to the local collection using the local clock and zone.
func (s *Session) Filter(mode query.FilterMode) []domain.Task {
	return query.Filter(s.Tasks(), mode, s.now())
}

func (s *Session) Completed(mode query.SortMode) []domain.Task {
	return query.SortCompleted(s.Tasks(), mode)
}

func (s *Session) Stats() query.Stats {
	return query.Aggregate(s.Tasks())
}

func (s *Session) mutate(ctx context.Context, op string, call func(token string) (*domain.Task, error)) (*domain.Task, error) {
	token := s.Token()
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	task, err := call(token)
	if err != nil {
		return nil, s.check(token, err)
	}
	if err := s.Sync(ctx); err != nil {
		return task, fmt.Errorf("refresh after %s: %w", op, err)
	}
	return task, nil
}

// check signs the session out when the server rejected token. A token that
// has already been replaced by a newer login is left alone.
func (s *Session) check(token string, err error) error {
	if !domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != token {
		return err
	}
	s.logger.Info("session expired, signing out")
	s.token = ""
	s.user = nil
	s.tasks = nil
	if delErr := s.store.Delete(keyToken, keyUser); delErr != nil {
		s.logger.Warn("failed to clear stored session", zap.Error(delErr))
	}
	return err
}

// persist must be called with mu held.
func (s *Session) persist(token string, user *domain.UserSummary) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Put(keyUser, raw); err != nil {
		return err
	}
	return s.store.Put(keyToken, []byte(token))
}
