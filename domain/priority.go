package domain

import "strings"

// Priority is the urgency bucket of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DefaultPriority is applied when a task is created without one.
const DefaultPriority = PriorityMedium

// ParsePriority matches s case-insensitively. An empty value yields DefaultPriority.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultPriority, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", NewFieldError("priority", "priority must be one of low, medium, high")
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Rank orders priorities: high 3, medium 2, low 1.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}
