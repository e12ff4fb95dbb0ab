package repository

import (
	"context"

	"github.com/fastygo/taskflow/domain"
)

// TaskRepository persists tasks. It has no notion of callers; ownership is
// enforced by the task use case.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Task, error)
	Create(ctx context.Context, task *domain.Task) (*domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error)
	Delete(ctx context.Context, id string) error
}
