package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
)

// MeetingTool is the function the meeting model must call.
const MeetingTool = "saveMeetingSummaryAndTasks"

// Meeting is a transcript to summarise.
type Meeting struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
}

// Validate reports a missing title or transcript.
func (m Meeting) Validate() error {
	if strings.TrimSpace(m.Title) == "" || strings.TrimSpace(m.Transcript) == "" {
		return apperr.Validation("meeting", "Missing title or transcript")
	}
	return nil
}

var meetingTool = llm.ToolDefinition{
	Name:        MeetingTool,
	Description: "Saves the meeting summary and all extracted action items.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summaryContent": map[string]any{
				"type":        "string",
				"description": "A concise executive summary of the meeting.",
			},
			"actionItems": map[string]any{
				"type":        "array",
				"description": "A list of action items (tasks) extracted from the meeting.",
				"items":       taskItemSchema,
			},
		},
		"required": []string{"summaryContent", "actionItems"},
	},
}

func meetingPrompt(today string) string {
	return `You are a Meeting Intelligence Agent. Your job is to read a meeting transcript and do two things:
1. Write a brief, professional executive summary.
2. Extract ALL action items, assigning priority and due dates if mentioned.
- Today's date is: ` + today + `
- When you are finished, call '` + MeetingTool + `' with the summary and the list of action items.`
}

// ProcessMeeting summarises m and stores one summary plus one task per
// action item, all with source origin m.Title.
func (a *Agents) ProcessMeeting(ctx context.Context, owner string, m Meeting) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	a.logger.Info("extract: processing transcript", slog.String("title", m.Title), slog.String("owner", owner))

	tc, text, err := call(ctx, a.meeting, meetingPrompt(a.today()), m.Transcript, meetingTool)
	if err != nil {
		return nil, fmt.Errorf("extract: meeting: %w", err)
	}
	if tc == nil {
		a.logger.Info("extract: meeting model answered without a tool call", slog.String("text", text))
		return &Result{Message: plainText(text), TaskIDs: []string{}}, nil
	}

	var args struct {
		SummaryContent string     `json:"summaryContent"`
		ActionItems    []taskArgs `json:"actionItems"`
	}
	if err := tc.Decode(&args); err != nil {
		return nil, apperr.Upstream("extract: decode "+MeetingTool+" arguments", err)
	}

	titles := make([]string, 0, len(args.ActionItems))
	for _, it := range args.ActionItems {
		titles = append(titles, it.Title)
	}
	sum, err := a.store.CreateSummary(ctx, owner, repository.NewSummary{
		Type:        models.SummaryMeeting,
		Title:       m.Title,
		Content:     args.SummaryContent,
		ActionItems: titles,
		Origin:      m.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: save summary: %w", err)
	}

	ids, skipped, err := a.createTasks(ctx, owner, args.ActionItems, models.Source{Type: models.SourceMeeting, Origin: m.Title})
	if err != nil {
		return nil, err
	}
	a.logger.Info("extract: summary and tasks created",
		slog.String("summary", sum.ID), slog.Int("created", len(ids)), slog.Int("skipped", skipped))
	return &Result{
		Message:    fmt.Sprintf("Summary and %d tasks created.", len(ids)),
		TaskIDs:    ids,
		Skipped:    skipped,
		SummaryID:  sum.ID,
		ToolCalled: true,
	}, nil
}
