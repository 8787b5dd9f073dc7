// Package extract turns emails and meeting transcripts into tasks and
// summaries by instructing the model to answer with exactly one tool call.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
)

// DefaultSender is used when an email arrives without a From address.
const DefaultSender = "demo-sender@example.com"

const noAction = "No action taken."

// Store is the subset of the repository the agents write to.
type Store interface {
	CreateTask(ctx context.Context, owner string, in repository.NewTask) (*models.Task, error)
	CreateSummary(ctx context.Context, owner string, in repository.NewSummary) (*models.Summary, error)
}

// Result reports what one extraction run produced.
type Result struct {
	Message string   `json:"message"`
	TaskIDs []string `json:"taskIds"`
	Skipped int      `json:"skipped"`
	// SummaryID is set for meetings only.
	SummaryID string `json:"summaryId,omitempty"`
	// ToolCalled is false when the model answered in plain text.
	ToolCalled bool `json:"toolCalled"`
}

// Agents runs the email and meeting pipelines.
type Agents struct {
	store   Store
	email   llm.Client
	meeting llm.Client
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures Agents.
type Option func(*Agents)

// WithClock overrides the time source used for "today" in prompts.
func WithClock(now func() time.Time) Option {
	return func(a *Agents) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agents) { a.logger = l }
}

// New creates the agents. emailModel serves the fast email pipeline and
// meetingModel the summarisation pipeline; they may be the same client.
func New(store Store, emailModel, meetingModel llm.Client, opts ...Option) *Agents {
	a := &Agents{
		store:   store,
		email:   emailModel,
		meeting: meetingModel,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// taskArgs is one extracted task as declared in the tool schemas.
type taskArgs struct {
	Title    string `json:"title"`
	Priority string `json:"priority"`
	DueDate  string `json:"dueDate"`
}

var taskItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string", "description": "The title of the task."},
		"priority": map[string]any{
			"type":        "string",
			"description": `Priority: "low", "medium", "high", or "critical". Infer based on urgency.`,
			"enum":        []string{"low", "medium", "high", "critical"},
		},
		"dueDate": map[string]any{
			"type":        "string",
			"description": "The due date in ISO 8601 format, e.g. 2025-11-12T17:00:00Z, if one is stated or implied.",
		},
	},
	"required": []string{"title"},
}

// call runs one model turn and returns the first call to tool, if any.
func call(ctx context.Context, model llm.Client, system, document string, tool llm.ToolDefinition) (*llm.ToolCall, string, error) {
	resp, err := model.Complete(ctx, llm.CompletionRequest{
		System:   system,
		Messages: []llm.Message{llm.UserMessage(document)},
		Tools:    []llm.ToolDefinition{tool},
	})
	if err != nil {
		return nil, "", err
	}
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == tool.Name {
			return &resp.ToolCalls[i], resp.Content, nil
		}
	}
	return nil, resp.Content, nil
}

// createTasks stores each extracted task, skipping entries that fail validation.
func (a *Agents) createTasks(ctx context.Context, owner string, items []taskArgs, source models.Source) ([]string, int, error) {
	ids := make([]string, 0, len(items))
	skipped := 0
	for _, it := range items {
		task, err := a.store.CreateTask(ctx, owner, repository.NewTask{
			Title:    it.Title,
			Priority: it.Priority,
			DueDate:  it.DueDate,
			Source:   source,
		})
		if err != nil {
			if isValidation(err) {
				skipped++
				a.logger.Warn("extract: skipped task",
					slog.String("title", it.Title),
					slog.String("source", string(source.Type)),
					slog.String("error", err.Error()))
				continue
			}
			return ids, skipped, fmt.Errorf("extract: create task: %w", err)
		}
		ids = append(ids, task.ID)
	}
	return ids, skipped, nil
}

func (a *Agents) today() string {
	return docstore.FormatTime(a.now())
}

func plainText(text string) string {
	if strings.TrimSpace(text) == "" {
		return noAction
	}
	return text
}

func isValidation(err error) bool {
	return errors.Is(err, apperr.ErrValidation)
}
