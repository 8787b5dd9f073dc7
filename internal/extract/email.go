package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
)

// EmailTool is the function the email model must call.
const EmailTool = "createTasks"

// Email is an inbound message to mine for tasks.
type Email struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate reports a missing subject or body.
func (e Email) Validate() error {
	if strings.TrimSpace(e.Subject) == "" || strings.TrimSpace(e.Body) == "" {
		return apperr.Validation("email", "Missing subject or body")
	}
	return nil
}

var emailTool = llm.ToolDefinition{
	Name:        EmailTool,
	Description: "Creates one or more new tasks for the user.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type":        "array",
				"description": "A list of tasks to create.",
				"items":       taskItemSchema,
			},
		},
		"required": []string{"tasks"},
	},
}

func emailPrompt(today string) string {
	return `You are an Email Intelligence Agent. Your job is to read an email and extract all action items as tasks.
- Today's date is: ` + today + `
- Be precise. Extract all distinct tasks.
- Infer priority (low, medium, high, critical) based on keywords (e.g., "ASAP" is critical, "by Friday" is high).
- Convert relative dates (e.g., "this Friday", "next Monday") into absolute ISO 8601 timestamps.
- When you have the list of tasks, call the '` + EmailTool + `' function ONE TIME with all tasks in the array.`
}

// ProcessEmail extracts tasks from e and stores them for owner with
// source {email, sender}.
func (a *Agents) ProcessEmail(ctx context.Context, owner string, e Email) (*Result, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.From) == "" {
		e.From = DefaultSender
	}
	a.logger.Info("extract: processing email", slog.String("from", e.From), slog.String("owner", owner))

	document := fmt.Sprintf("From: %s\nSubject: %s\n\nBody:\n%s", e.From, e.Subject, e.Body)
	tc, text, err := call(ctx, a.email, emailPrompt(a.today()), document, emailTool)
	if err != nil {
		return nil, fmt.Errorf("extract: email: %w", err)
	}
	if tc == nil {
		a.logger.Info("extract: email model answered without a tool call", slog.String("text", text))
		return &Result{Message: plainText(text), TaskIDs: []string{}}, nil
	}

	var args struct {
		Tasks []taskArgs `json:"tasks"`
	}
	if err := tc.Decode(&args); err != nil {
		return nil, apperr.Upstream("extract: decode "+EmailTool+" arguments", err)
	}

	ids, skipped, err := a.createTasks(ctx, owner, args.Tasks, models.Source{Type: models.SourceEmail, Origin: e.From})
	if err != nil {
		return nil, err
	}
	a.logger.Info("extract: tasks created from email",
		slog.Int("created", len(ids)), slog.Int("skipped", skipped))
	return &Result{
		Message:    fmt.Sprintf("Created %d tasks.", len(ids)),
		TaskIDs:    ids,
		Skipped:    skipped,
		ToolCalled: true,
	}, nil
}
