package models

import (
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status. Any known status may follow any other.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// TodoIndexName is the composite (user_id, created_at desc) index the owner
// listing query depends on.
const TodoIndexName = "idx_todos_owner_created"

type Todo struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string     `json:"user_id" gorm:"type:varchar(36);not null"`
	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    Priority   `json:"priority" gorm:"not null;default:'medium'"`
	Status      Status     `json:"status" gorm:"not null;default:'pending'"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TodoInput is what the presentation layer supplies to create a todo.
type TodoInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=100"`
	Description string     `json:"description" validate:"max=500"`
	DueDate     *time.Time `json:"due_date,omitempty" validate:"omitempty,notpast"`
	Priority    Priority   `json:"priority" validate:"omitempty,oneof=high medium low"`
}

// TodoPatch is the only mutation a stored todo accepts.
type TodoPatch struct {
	Status    Status    `json:"status" binding:"required"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Apply merges the patch into t.
func (p TodoPatch) Apply(t *Todo) {
	t.Status = p.Status
	t.UpdatedAt = p.UpdatedAt
}
