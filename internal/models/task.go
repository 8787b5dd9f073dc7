// Package models defines the domain types for TaskHive.
package models

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

// TaskPriority ranks how urgent a task is.
type TaskPriority string

// Task priorities.
const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Priorities lists every valid priority, lowest first.
var Priorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// SourceType says where a task came from.
type SourceType string

// Task sources.
const (
	SourceEmail    SourceType = "email"
	SourceMeeting  SourceType = "meeting"
	SourceDocument SourceType = "document"
	SourceSlack    SourceType = "slack"
	SourceAgent    SourceType = "agent"
	SourceManual   SourceType = "manual"
)

// Source records the origin of a task, e.g. {email, "cfo@example.com"}.
type Source struct {
	Type   SourceType `json:"type"`
	Origin string     `json:"origin"`
}

// Task is a unit of work owned by a user.
//
// Timestamps are ISO-8601 strings in UTC, as stored. DueAt is nil when the
// task has no due date.
type Task struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueAt       *string      `json:"dueAt"`
	Source      Source       `json:"source"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

// TaskAction is a user-triggered mutation on a task.
type TaskAction string

// Supported task actions.
const (
	ActionComplete TaskAction = "complete"
	ActionSnooze1D TaskAction = "snooze_1d"
	ActionBlock    TaskAction = "block"
)

// TaskFilter names a task listing shape.
type TaskFilter string

// Task filters. Anything else falls back to FilterAll.
const (
	FilterOverdue        TaskFilter = "overdue"
	FilterDueToday       TaskFilter = "due_today"
	FilterAll            TaskFilter = "all"
	FilterIngested       TaskFilter = "ingested"
	FilterActionRequired TaskFilter = "action_required"
	FilterWaitingOn      TaskFilter = "waiting_on"
	FilterFYI            TaskFilter = "fyi"
)

// KPIs are the dashboard counters.
type KPIs struct {
	Overdue  int `json:"overdue"`
	DueToday int `json:"dueToday"`
	Incoming int `json:"incoming"`
}
