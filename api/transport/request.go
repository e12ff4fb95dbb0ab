package transport

import (
	"bytes"
	"encoding/json"

	"github.com/fastygo/taskflow/domain"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileUpdateRequest struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (r ProfileUpdateRequest) Patch() domain.ProfilePatch {
	return domain.ProfilePatch{Name: r.Name, Avatar: r.Avatar}
}

// SubtaskRequest accepts the same completion spellings as a task.
type SubtaskRequest struct {
	Title     string          `json:"title"`
	Completed json.RawMessage `json:"completed"`
}

// TaskRequest keeps every field raw so that an absent field can be told apart
// from an explicit null or zero value.
type TaskRequest struct {
	Title       *string           `json:"title"`
	Description *string           `json:"description"`
	Priority    *string           `json:"priority"`
	DueDate     json.RawMessage   `json:"due_date"`
	Completed   json.RawMessage   `json:"completed"`
	Subtasks    *[]SubtaskRequest `json:"subtasks"`
}

// TaskDraft is a decoded create payload.
type TaskDraft struct {
	Title       string
	Description string
	Priority    domain.Priority
	DueDate     *domain.Date
	Completed   bool
	Subtasks    []domain.Subtask
}

// Draft converts a create payload. Missing completion defaults to false.
func (r TaskRequest) Draft() (TaskDraft, error) {
	var draft TaskDraft
	if r.Title != nil {
		draft.Title = *r.Title
	}
	if r.Description != nil {
		draft.Description = *r.Description
	}
	if r.Priority != nil {
		p, err := domain.ParsePriority(*r.Priority)
		if err != nil {
			return TaskDraft{}, err
		}
		draft.Priority = p
	}
	due, _, err := decodeDueDate(r.DueDate)
	if err != nil {
		return TaskDraft{}, err
	}
	draft.DueDate = due
	if r.Completed != nil {
		if draft.Completed, err = domain.ParseCompletion(r.Completed); err != nil {
			return TaskDraft{}, err
		}
	}
	if r.Subtasks != nil {
		if draft.Subtasks, err = decodeSubtasks(*r.Subtasks); err != nil {
			return TaskDraft{}, err
		}
	}
	return draft, nil
}

// Patch converts an update payload. Absent fields stay nil; a null or empty
// due_date clears the stored date.
func (r TaskRequest) Patch() (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
	}
	if r.Priority != nil {
		p, err := domain.ParsePriority(*r.Priority)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Priority = &p
	}
	due, clearDue, err := decodeDueDate(r.DueDate)
	if err != nil {
		return domain.TaskPatch{}, err
	}
	patch.DueDate = due
	patch.ClearDueDate = clearDue
	if r.Completed != nil {
		completed, err := domain.ParseCompletion(r.Completed)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Completed = &completed
	}
	if r.Subtasks != nil {
		subtasks, err := decodeSubtasks(*r.Subtasks)
		if err != nil {
			return domain.TaskPatch{}, err
		}
		patch.Subtasks = &subtasks
	}
	return patch, nil
}

func decodeDueDate(raw json.RawMessage) (*domain.Date, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false, domain.NewFieldError("due_date", "due_date must be a date string")
	}
	if s == "" {
		return nil, true, nil
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return nil, false, err
	}
	return &d, false, nil
}

func decodeSubtasks(in []SubtaskRequest) ([]domain.Subtask, error) {
	out := make([]domain.Subtask, 0, len(in))
	for _, st := range in {
		sub := domain.Subtask{Title: st.Title}
		if len(st.Completed) > 0 {
			done, err := domain.ParseCompletion(st.Completed)
			if err != nil {
				return nil, domain.NewFieldError("subtasks", err.Error())
			}
			sub.Completed = done
		}
		out = append(out, sub)
	}
	return out, nil
}
