package model

import (
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps user input onto a Priority. Empty input means medium.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("invalid priority %q: want low, medium or high", s)
}

// Rank orders priorities high to low for listings.
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

// Task is a locally stored to-do item owned by a single user.
// A nil DueAt means the task has no deadline.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	DueAt       *time.Time
	Completed   bool
	Priority    Priority
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasDue reports whether the task carries a deadline.
func (t Task) HasDue() bool {
	return t.DueAt != nil && !t.DueAt.IsZero()
}
