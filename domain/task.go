package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task represents a user-owned unit of work.
type Task struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	DueDate     *Date     `json:"due_date,omitempty"`
	Completed   bool      `json:"completed"`
	Subtasks    []Subtask `json:"subtasks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Subtask is a checklist entry inside a task.
type Subtask struct {
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Prepare validates a new task and fills the identifier, timestamps and default priority.
func (t *Task) Prepare(now time.Time) error {
	if t == nil {
		return ErrInvalidPayload
	}
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return NewFieldError("title", "title is required")
	}
	if t.OwnerID == "" {
		return NewFieldError("owner_id", "owner is required")
	}
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	if !t.Priority.Valid() {
		return NewFieldError("priority", "priority must be one of low, medium, high")
	}
	if err := validateSubtasks(t.Subtasks); err != nil {
		return err
	}
	if t.Subtasks == nil {
		t.Subtasks = []Subtask{}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

// Progress is the share of completed subtasks in [0, 1].
func (t *Task) Progress() float64 {
	if t == nil || len(t.Subtasks) == 0 {
		return 0
	}
	done := 0
	for _, st := range t.Subtasks {
		if st.Completed {
			done++
		}
	}
	return float64(done) / float64(len(t.Subtasks))
}

// Clone returns a deep copy so callers cannot alias stored state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DueDate != nil {
		due := *t.DueDate
		cp.DueDate = &due
	}
	cp.Subtasks = append([]Subtask{}, t.Subtasks...)
	return &cp
}

// TaskPatch is a partial update. Nil fields retain their prior values.
type TaskPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	DueDate      *Date      `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	Completed    *bool      `json:"completed,omitempty"`
	Subtasks     *[]Subtask `json:"subtasks,omitempty"`
}

// Apply merges the patch into t. Setting Completed to its current value is a no-op.
func (p TaskPatch) Apply(t *Task) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return NewFieldError("title", "title is required")
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return NewFieldError("priority", "priority must be one of low, medium, high")
		}
		t.Priority = *p.Priority
	}
	switch {
	case p.ClearDueDate:
		t.DueDate = nil
	case p.DueDate != nil:
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Subtasks != nil {
		if err := validateSubtasks(*p.Subtasks); err != nil {
			return err
		}
		t.Subtasks = append([]Subtask{}, *p.Subtasks...)
	}
	return nil
}

func validateSubtasks(subtasks []Subtask) error {
	for i := range subtasks {
		subtasks[i].Title = strings.TrimSpace(subtasks[i].Title)
		if subtasks[i].Title == "" {
			return NewFieldError("subtasks", "subtask title is required")
		}
	}
	return nil
}
