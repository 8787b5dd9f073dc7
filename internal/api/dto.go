package api

import (
	"github.com/taskhive/taskhive/internal/models"
)

// CreateTaskRequest is the request body for creating a manual task.
type CreateTaskRequest struct {
	Title       string `json:"title" example:"Prepare Q4 slides" validate:"required"`
	Description string `json:"description" example:"Ten slides max"`
	Priority    string `json:"priority" example:"high" enums:"low,medium,high,critical"`
	DueDate     string `json:"dueDate" example:"2025-11-14T17:00:00Z"`
}

// TaskActionRequest is the request body for POST /tasks/{id}/action.
type TaskActionRequest struct {
	Action string `json:"action" example:"complete" enums:"complete,snooze_1d,block" validate:"required"`
}

// ChatRequest is one user prompt for the assistant.
type ChatRequest struct {
	Prompt    string `json:"prompt" example:"What are my overdue tasks?" validate:"required"`
	SessionID string `json:"sessionId" example:"tab-1"`
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Role string `json:"role" example:"model" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// MessageResponse carries a plain status message.
type MessageResponse struct {
	Message string `json:"message" validate:"required"`
}

// Task is the task response type (aliased from the domain layer).
type Task = models.Task

// Summary is the summary response type.
type Summary = models.Summary

// Integration is the integration response type.
type Integration = models.Integration

// KPIs is the dashboard counters response type.
type KPIs = models.KPIs
