package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/taskflow/domain"
	"github.com/fastygo/taskflow/repository"
)

const taskColumns = `id, owner_id, title, description, priority, due_date, completed, subtasks, created_at, updated_at`

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository returns a Postgres-backed implementation of TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) repository.TaskRepository {
	return &taskRepository{pool: pool}
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func (r *taskRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Task, error) {
	const query = `
	SELECT ` + taskColumns + `
	FROM tasks
	WHERE owner_id = $1
	ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidPayload
	}
	if err := task.Prepare(time.Now()); err != nil {
		return nil, err
	}

	const query = `
	INSERT INTO tasks (id, owner_id, title, description, priority, due_date, completed, subtasks, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING
	RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		task.ID,
		task.OwnerID,
		task.Title,
		task.Description,
		string(task.Priority),
		nullDate(task.DueDate),
		task.Completed,
		marshalSubtasks(task.Subtasks),
		nullTime(task.CreatedAt),
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// replayed create from the write-behind buffer
		return r.GetByID(ctx, task.ID)
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Update merges the patch under a row lock so concurrent writers to the same
// task are applied one at a time.
func (r *taskRepository) Update(ctx context.Context, id string, patch domain.TaskPatch) (*domain.Task, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	task, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(task); err != nil {
		return nil, err
	}

	const query = `
	UPDATE tasks
	SET title = $2,
		description = $3,
		priority = $4,
		due_date = $5,
		completed = $6,
		subtasks = $7,
		updated_at = NOW()
	WHERE id = $1
	RETURNING updated_at
	`
	if err := tx.QueryRow(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		string(task.Priority),
		nullDate(task.DueDate),
		task.Completed,
		marshalSubtasks(task.Subtasks),
	).Scan(&task.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var (
		priority string
		due      *time.Time
		subtasks []byte
	)

	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.Title,
		&task.Description,
		&priority,
		&due,
		&task.Completed,
		&subtasks,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, err
	}

	task.Priority = domain.Priority(priority)
	if due != nil {
		date := domain.DateOf(due.UTC())
		task.DueDate = &date
	}
	list, err := unmarshalSubtasks(subtasks)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "corrupt subtasks for task "+task.ID, err)
	}
	task.Subtasks = list
	return &task, nil
}
