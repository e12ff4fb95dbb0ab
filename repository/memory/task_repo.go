package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/repository"
)

type taskRepository struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
	order []string
	now   func() time.Time
}

// NewTaskRepository creates an in-process task store. All writes are
// serialized by a single lock, so concurrent updates to one task are applied
// one after another (last write wins).
func NewTaskRepository() repository.TaskRepository {
	return &taskRepository{
		tasks: make(map[string]*domain.Task),
		now:   time.Now,
	}
}

func (r *taskRepository) GetByID(_ context.Context, id string) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return task.Clone(), nil
}

func (r *taskRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]domain.Task, 0)
	for _, id := range r.order {
		task := r.tasks[id]
		if task.OwnerID == ownerID {
			tasks = append(tasks, *task.Clone())
		}
	}
	return tasks, nil
}

func (r *taskRepository) Create(_ context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	stored := task.Clone()
	if err := stored.Prepare(r.now()); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[stored.ID]; !exists {
		r.order = append(r.order, stored.ID)
	}
	r.tasks[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *taskRepository) Update(_ context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	next := current.Clone()
	if err := patch.Apply(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	r.tasks[id] = next
	return next.Clone(), nil
}

func (r *taskRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(r.tasks, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
