package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
)

// toolPageSize bounds getTasks results handed back to the model.
const toolPageSize = 20

// Repository is the subset of the repository the chat tools use.
type Repository interface {
	ListTasks(ctx context.Context, owner string, filter models.TaskFilter, limit int) ([]models.Task, error)
	CreateTask(ctx context.Context, owner string, in repository.NewTask) (*models.Task, error)
	ListSummaries(ctx context.Context, owner string) ([]models.Summary, error)
}

// Tool is one function the model may call. The set is closed: see tools().
type Tool interface {
	Definition() llm.ToolDefinition
	Run(ctx context.Context, owner string, call llm.ToolCall) (any, error)
}

func tools(repo Repository) []Tool {
	return []Tool{
		getTasks{repo: repo},
		createTask{repo: repo},
		getSummaries{repo: repo},
	}
}

type getTasks struct{ repo Repository }

func (getTasks) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "getTasks",
		Description: "Get a list of the user's tasks based on a status filter.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"description": `The status to filter tasks by. Can be "overdue", "due_today", or "all".`,
					"enum":        []string{"overdue", "due_today", "all"},
				},
			},
			"required": []string{"status"},
		},
	}
}

func (t getTasks) Run(ctx context.Context, owner string, call llm.ToolCall) (any, error) {
	var args struct {
		Status string `json:"status"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return t.repo.ListTasks(ctx, owner, models.TaskFilter(args.Status), toolPageSize)
}

type createTask struct{ repo Repository }

func (createTask) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "createTask",
		Description: "Create a new task for the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{"type": "string", "description": "The title of the task."},
				"priority": map[string]any{
					"type":        "string",
					"description": `The priority of the task. Can be "low", "medium", "high", or "critical".`,
					"enum":        []string{"low", "medium", "high", "critical"},
				},
				"dueDate": map[string]any{
					"type":        "string",
					"description": "The due date of the task in ISO 8601 format. e.g., 2025-11-12T10:00:00Z",
				},
			},
			"required": []string{"title"},
		},
	}
}

func (t createTask) Run(ctx context.Context, owner string, call llm.ToolCall) (any, error) {
	var args struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
		DueDate  string `json:"dueDate"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return t.repo.CreateTask(ctx, owner, repository.NewTask{
		Title:    args.Title,
		Priority: args.Priority,
		DueDate:  args.DueDate,
		Source:   models.Source{Type: models.SourceAgent, Origin: "Smart Agent"},
	})
}

type getSummaries struct{ repo Repository }

func (getSummaries) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "getSummaries",
		Description: "Get a list of all meeting and document summaries.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

func (t getSummaries) Run(ctx context.Context, owner string, _ llm.ToolCall) (any, error) {
	return t.repo.ListSummaries(ctx, owner)
}

// encodeResult renders a tool's return value for the model.
func encodeResult(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
