// Package task is the access-controlled entry point to the task store. Every
// operation resolves the caller from a bearer token before touching storage.
package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/pkg/logger"
	"github.com/fastygo/taskflow/repository"
	"github.com/fastygo/taskflow/usecase"
	"github.com/fastygo/taskflow/usecase/query"
)

var errWritesQueued = errors.New("earlier writes for this task are still buffered")

// CreateInput carries the fields accepted when creating a task.
type CreateInput struct {
	Title       string
	Description string
	Priority    domain.Priority
	DueDate     *domain.Date
	Completed   bool
	Subtasks    []domain.Subtask
}

type UseCase struct {
	tasks  repository.TaskRepository
	auth   usecase.TokenValidator
	buffer usecase.OperationBuffer
	logger *zap.Logger
	now    func() time.Time
}

func New(tasks repository.TaskRepository, auth usecase.TokenValidator, buffer usecase.OperationBuffer, log *zap.Logger) *UseCase {
	if log == nil {
		log = zap.NewNop()
	}
	return &UseCase{
		tasks:  tasks,
		auth:   auth,
		buffer: buffer,
		logger: log,
		now:    time.Now,
	}
}

// Authorize checks the token alone, so a transport can reject a stale token
// before it looks at the request body.
func (uc *UseCase) Authorize(ctx context.Context, token string) error {
	_, err := uc.caller(ctx, token)
	return err
}

// ListTasks returns the caller's tasks and nobody else's.
func (uc *UseCase) ListTasks(ctx context.Context, token string) ([]domain.Task, error) {
	userID, err := uc.caller(ctx, token)
	if err != nil {
		return nil, err
	}
	return uc.tasks.ListByOwner(ctx, userID)
}

func (uc *UseCase) CreateTask(ctx context.Context, token string, in CreateInput) (*domain.Task, error) {
	userID, err := uc.caller(ctx, token)
	if err != nil {
		return nil, err
	}

	task := &domain.Task{
		OwnerID:     userID,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		Completed:   in.Completed,
		Subtasks:    in.Subtasks,
	}
	if err := task.Prepare(uc.now()); err != nil {
		return nil, err
	}

	created, err := uc.tasks.Create(ctx, task)
	if err != nil {
		if !domain.IsDomain(err) && uc.shouldBuffer(ctx, usecase.OperationCreate, usecase.TaskOperation{
			TaskID:  task.ID,
			OwnerID: userID,
			Task:    task,
		}) {
			return task, nil
		}
		return nil, err
	}
	return created, nil
}

// UpdateTask merges patch into one of the caller's tasks.
func (uc *UseCase) UpdateTask(ctx context.Context, token, id string, patch domain.TaskPatch) (*domain.Task, error) {
	userID, err := uc.caller(ctx, token)
	if err != nil {
		return nil, err
	}
	queued := uc.settle(ctx, id)
	current, err := uc.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return uc.update(ctx, userID, current, patch, queued)
}

// ToggleTask flips the completion flag of one of the caller's tasks.
func (uc *UseCase) ToggleTask(ctx context.Context, token, id string) (*domain.Task, error) {
	userID, err := uc.caller(ctx, token)
	if err != nil {
		return nil, err
	}
	queued := uc.settle(ctx, id)
	current, err := uc.loadOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	completed := !current.Completed
	return uc.update(ctx, userID, current, domain.TaskPatch{Completed: &completed}, queued)
}

func (uc *UseCase) DeleteTask(ctx context.Context, token, id string) error {
	userID, err := uc.caller(ctx, token)
	if err != nil {
		return err
	}
	queued := uc.settle(ctx, id)
	if _, err := uc.loadOwned(ctx, userID, id); err != nil {
		return err
	}

	err = errWritesQueued
	if !queued {
		if err = uc.tasks.Delete(ctx, id); err == nil || domain.IsDomain(err) {
			return err
		}
	}
	if uc.shouldBuffer(ctx, usecase.OperationDelete, usecase.TaskOperation{
		TaskID:  id,
		OwnerID: userID,
	}) {
		return nil
	}
	return err
}

// FilterTasks returns the caller's tasks matching mode; now carries the
// caller's location for the date-based modes.
func (uc *UseCase) FilterTasks(ctx context.Context, token string, mode query.FilterMode, now time.Time) ([]domain.Task, error) {
	tasks, err := uc.ListTasks(ctx, token)
	if err != nil {
		return nil, err
	}
	return query.Filter(tasks, mode, now), nil
}

// CompletedTasks returns the caller's completed tasks ordered by mode.
func (uc *UseCase) CompletedTasks(ctx context.Context, token string, mode query.SortMode) ([]domain.Task, error) {
	tasks, err := uc.ListTasks(ctx, token)
	if err != nil {
		return nil, err
	}
	return query.SortCompleted(tasks, mode), nil
}

// Stats aggregates the caller's current collection.
func (uc *UseCase) Stats(ctx context.Context, token string) (query.Stats, error) {
	tasks, err := uc.ListTasks(ctx, token)
	if err != nil {
		return query.Stats{}, err
	}
	return query.Aggregate(tasks), nil
}

// update writes patch directly unless earlier writes for the task are still
// queued, in which case it joins the queue so replay keeps request order.
func (uc *UseCase) update(ctx context.Context, userID string, current *domain.Task, patch domain.TaskPatch, queued bool) (*domain.Task, error) {
	err := errWritesQueued
	if !queued {
		updated, updateErr := uc.tasks.Update(ctx, current.ID, patch)
		if updateErr == nil {
			return updated, nil
		}
		if domain.IsDomain(updateErr) {
			return nil, updateErr
		}
		err = updateErr
	}

	merged := current.Clone()
	if applyErr := patch.Apply(merged); applyErr != nil {
		return nil, applyErr
	}
	if uc.shouldBuffer(ctx, usecase.OperationUpdate, usecase.TaskOperation{
		TaskID:  current.ID,
		OwnerID: userID,
		Patch:   &patch,
	}) {
		merged.UpdatedAt = uc.now()
		return merged, nil
	}
	return nil, err
}

// settle replays writes still buffered for the task and reports whether any
// remain queued.
func (uc *UseCase) settle(ctx context.Context, id string) bool {
	if uc.buffer == nil || id == "" {
		return false
	}
	if err := uc.buffer.SettleTask(ctx, id); err != nil {
		logger.WithRequestID(ctx, uc.logger).Warn("task has queued writes",
			zap.String("task_id", id), zap.Error(err))
		return true
	}
	return false
}

func (uc *UseCase) caller(ctx context.Context, token string) (string, error) {
	userID, err := uc.auth.Validate(ctx, token)
	if err != nil || userID == "" {
		return "", domain.ErrUnauthorized
	}
	return userID, nil
}

// loadOwned fetches a task on behalf of userID. A task owned by someone else
// is reported exactly like a missing one.
func (uc *UseCase) loadOwned(ctx context.Context, userID, id string) (*domain.Task, error) {
	if id == "" {
		return nil, domain.ErrTaskNotFound
	}
	task, err := uc.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(task, userID); err != nil {
		logger.WithRequestID(ctx, uc.logger).Debug("foreign task access concealed",
			zap.String("task_id", id), zap.String("user_id", userID))
		return nil, conceal(err)
	}
	return task, nil
}

func authorize(task *domain.Task, userID string) error {
	if task.OwnerID != userID {
		return domain.ErrForbidden
	}
	return nil
}

// conceal applies the visibility rule: a forbidden task surfaces as not found,
// so callers cannot probe for other owners' identifiers.
func conceal(err error) error {
	if domain.IsDomainError(err, domain.ErrCodeForbidden) {
		return domain.ErrTaskNotFound
	}
	return err
}

func (uc *UseCase) shouldBuffer(ctx context.Context, operation string, op usecase.TaskOperation) bool {
	log := logger.WithRequestID(ctx, uc.logger)
	if uc.buffer == nil {
		return false
	}
	if err := uc.buffer.BufferTask(ctx, operation, op); err != nil {
		log.Error("failed to buffer task operation", zap.String("operation", operation), zap.Error(err))
		return false
	}
	log.Warn("task operation buffered", zap.String("operation", operation), zap.String("task_id", op.TaskID))
	return true
}
