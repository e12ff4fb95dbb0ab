// Package query derives filtered views and statistics from a task collection
// that has already been scoped to one owner.
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/fastygo/taskflow/domain"
)

// FilterMode selects a subset of tasks.
type FilterMode string

const (
	FilterAll    FilterMode = "all"
	FilterToday  FilterMode = "today"
	FilterWeek   FilterMode = "week"
	FilterLow    FilterMode = "low"
	FilterMedium FilterMode = "medium"
	FilterHigh   FilterMode = "high"
)

// WeekSpan is the number of days after today covered by FilterWeek.
const WeekSpan = 7

// ParseFilter accepts the filter names case-insensitively, including the
// "this-week" and "priority=<p>" spellings. An empty value means all.
func ParseFilter(s string) (FilterMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "priority=")
	switch s {
	case "", "all":
		return FilterAll, nil
	case "today":
		return FilterToday, nil
	case "week", "this-week", "this_week":
		return FilterWeek, nil
	case "low":
		return FilterLow, nil
	case "medium":
		return FilterMedium, nil
	case "high":
		return FilterHigh, nil
	}
	return "", domain.NewFieldError("filter", "unknown filter "+s)
}

// Filter returns the tasks matching mode. Date modes compare calendar days in
// now's location; tasks without a due date never match them.
func Filter(tasks []domain.Task, mode FilterMode, now time.Time) []domain.Task {
	today := domain.DateOf(now)
	horizon := today.AddDays(WeekSpan)

	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if matches(task, mode, today, horizon) {
			out = append(out, task)
		}
	}
	return out
}

func matches(task domain.Task, mode FilterMode, today, horizon domain.Date) bool {
	switch mode {
	case FilterToday:
		return task.DueDate != nil && *task.DueDate == today
	case FilterWeek:
		return task.DueDate != nil && !task.DueDate.Before(today) && !task.DueDate.After(horizon)
	case FilterLow, FilterMedium, FilterHigh:
		return strings.EqualFold(string(task.Priority), string(mode))
	default:
		return true
	}
}

// SortMode orders the completed-task view.
type SortMode string

const (
	SortNewest   SortMode = "newest"
	SortOldest   SortMode = "oldest"
	SortPriority SortMode = "priority"
)

func ParseSort(s string) (SortMode, error) {
	switch SortMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortPriority:
		return SortPriority, nil
	}
	return "", domain.NewFieldError("sort", "unknown sort "+s)
}

// SortCompleted keeps the completed tasks and orders them by mode. The sort is
// stable: equal keys keep their input order.
func SortCompleted(tasks []domain.Task, mode SortMode) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Completed {
			out = append(out, task)
		}
	}
	Sort(out, mode)
	return out
}

// Sort orders tasks in place.
func Sort(tasks []domain.Task, mode SortMode) {
	switch mode {
	case SortOldest:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		})
	case SortPriority:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].Priority.Rank() > tasks[j].Priority.Rank()
		})
	default:
		sort.SliceStable(tasks, func(i, j int) bool {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		})
	}
}

// Stats are counts derived from one collection.
type Stats struct {
	Total          int `json:"total"`
	LowPriority    int `json:"low_priority"`
	MediumPriority int `json:"medium_priority"`
	HighPriority   int `json:"high_priority"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
}

// Aggregate counts tasks by priority and completion. Nothing is cached.
func Aggregate(tasks []domain.Task) Stats {
	var s Stats
	for _, task := range tasks {
		s.Total++
		switch task.Priority {
		case domain.PriorityLow:
			s.LowPriority++
		case domain.PriorityHigh:
			s.HighPriority++
		default:
			s.MediumPriority++
		}
		if task.Completed {
			s.Completed++
		}
	}
	s.Pending = s.Total - s.Completed
	return s
}
