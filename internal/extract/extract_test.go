package extract_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
	"github.com/taskhive/taskhive/internal/testutil"
)

const owner = testutil.Owner

var now = time.Date(2025, 11, 12, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T, replies ...llm.Reply) (*extract.Agents, *repository.Service, *llm.Scripted) {
	t.Helper()
	repo := testutil.TestRepo(t, repository.WithClock(testutil.FixedClock(now)))
	model := llm.NewScripted(replies...)
	return extract.New(repo, model, model, extract.WithClock(testutil.FixedClock(now))), repo, model
}

func toolCall(t *testing.T, name string, args any) llm.Reply {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return llm.Calls(llm.ToolCall{ID: "call_1", Name: name, Arguments: raw})
}

var budgetEmail = extract.Email{
	From:    "cfo@example.com",
	Subject: "Final call: Action required for Q4 budget",
	Body:    "Please review the attached Q4 budget proposal and send your feedback to me by this Friday at 5pm.",
}

func TestProcessEmail_CreatesTasks(t *testing.T) {
	agents, repo, model := setup(t, toolCall(t, extract.EmailTool, map[string]any{
		"tasks": []map[string]any{
			{"title": "Review Q4 budget proposal", "priority": "high", "dueDate": "2025-11-14T17:00:00Z"},
			{"title": "Attend all-hands meeting"},
		},
	}))
	ctx := context.Background()

	res, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	require.NoError(t, err)
	assert.True(t, res.ToolCalled)
	assert.Len(t, res.TaskIDs, 2)
	assert.Equal(t, "Created 2 tasks.", res.Message)

	tasks, err := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, models.Source{Type: models.SourceEmail, Origin: "cfo@example.com"}, task.Source)
		assert.Equal(t, models.StatusTodo, task.Status)
	}

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].System, "2025-11-12T10:00:00.000Z")
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, reqs[0].Messages[0].Role)
	assert.True(t, strings.HasPrefix(reqs[0].Messages[0].Content, "From: cfo@example.com\nSubject: Final call"))
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, extract.EmailTool, reqs[0].Tools[0].Name)
}

func TestProcessEmail_DefaultSender(t *testing.T) {
	agents, repo, _ := setup(t, toolCall(t, extract.EmailTool, map[string]any{
		"tasks": []map[string]any{{"title": "Reply"}},
	}))
	ctx := context.Background()
	e := budgetEmail
	e.From = ""

	_, err := agents.ProcessEmail(ctx, owner, e)
	require.NoError(t, err)
	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	require.Len(t, tasks, 1)
	assert.Equal(t, extract.DefaultSender, tasks[0].Source.Origin)
	assert.Equal(t, models.PriorityMedium, tasks[0].Priority)
	assert.Nil(t, tasks[0].DueAt)
}

func TestProcessEmail_SkipsInvalidEntries(t *testing.T) {
	agents, repo, _ := setup(t, toolCall(t, extract.EmailTool, map[string]any{
		"tasks": []map[string]any{
			{"title": "Good one"},
			{"title": "  "},
			{"title": "Bad date", "dueDate": "someday"},
		},
	}))
	ctx := context.Background()

	res, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	require.NoError(t, err)
	assert.Len(t, res.TaskIDs, 1)
	assert.Equal(t, 2, res.Skipped)

	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Good one", tasks[0].Title)
}

func TestProcessEmail_PlainTextWritesNothing(t *testing.T) {
	agents, repo, _ := setup(t, llm.Text("This email has no action items."))
	ctx := context.Background()

	res, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	require.NoError(t, err)
	assert.False(t, res.ToolCalled)
	assert.Equal(t, "This email has no action items.", res.Message)

	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	assert.Empty(t, tasks)
}

func TestProcessEmail_EmptyReply(t *testing.T) {
	agents, _, _ := setup(t, llm.Text(""))
	res, err := agents.ProcessEmail(context.Background(), owner, budgetEmail)
	require.NoError(t, err)
	assert.Equal(t, "No action taken.", res.Message)
}

func TestProcessEmail_IgnoresOtherTools(t *testing.T) {
	agents, repo, _ := setup(t, toolCall(t, "deleteEverything", map[string]any{}))
	ctx := context.Background()

	res, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	require.NoError(t, err)
	assert.False(t, res.ToolCalled)
	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	assert.Empty(t, tasks)
}

func TestProcessEmail_MissingFields(t *testing.T) {
	agents, _, model := setup(t)
	_, err := agents.ProcessEmail(context.Background(), owner, extract.Email{Subject: "hi"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Empty(t, model.Requests())
}

func TestProcessEmail_ModelFailure(t *testing.T) {
	agents, repo, _ := setup(t, llm.Fail(apperr.Upstream("llm", errors.New("503"))))
	ctx := context.Background()

	_, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	assert.Empty(t, tasks)
}

var budgetMeeting = extract.Meeting{
	Title:      "Q4 Budget Review",
	Transcript: "Alice: Bob, you need to finalize the vendor contracts by end-of-day. Carol, please send the draft to legal by tomorrow.",
}

func TestProcessMeeting_SummaryAndTasks(t *testing.T) {
	agents, repo, model := setup(t, toolCall(t, extract.MeetingTool, map[string]any{
		"summaryContent": "The marketing budget increased by 20%.",
		"actionItems": []map[string]any{
			{"title": "Finalize vendor contracts", "priority": "critical", "dueDate": "2025-11-12T17:00:00Z"},
			{"title": "Send press release draft to legal", "dueDate": "2025-11-13"},
			{"title": "Book the Q1 planning offsite", "priority": "low"},
		},
	}))
	ctx := context.Background()

	res, err := agents.ProcessMeeting(ctx, owner, budgetMeeting)
	require.NoError(t, err)
	assert.Equal(t, "Summary and 3 tasks created.", res.Message)
	assert.Len(t, res.TaskIDs, 3)
	assert.NotEmpty(t, res.SummaryID)

	sums, err := repo.ListSummaries(ctx, owner)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, models.SummaryMeeting, sums[0].Type)
	assert.Equal(t, "Q4 Budget Review", sums[0].Title)
	assert.Equal(t, "Q4 Budget Review", sums[0].SourceOrigin)
	assert.Equal(t, []string{
		"Finalize vendor contracts",
		"Send press release draft to legal",
		"Book the Q1 planning offsite",
	}, sums[0].ActionItems)

	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, models.Source{Type: models.SourceMeeting, Origin: "Q4 Budget Review"}, task.Source)
	}

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, budgetMeeting.Transcript, reqs[0].Messages[0].Content)
	assert.Equal(t, extract.MeetingTool, reqs[0].Tools[0].Name)
}

func TestProcessMeeting_NoActionItems(t *testing.T) {
	agents, repo, _ := setup(t, toolCall(t, extract.MeetingTool, map[string]any{
		"summaryContent": "Status update only.",
		"actionItems":    []map[string]any{},
	}))
	ctx := context.Background()

	res, err := agents.ProcessMeeting(ctx, owner, budgetMeeting)
	require.NoError(t, err)
	assert.Empty(t, res.TaskIDs)

	sums, _ := repo.ListSummaries(ctx, owner)
	require.Len(t, sums, 1)
	assert.Empty(t, sums[0].ActionItems)
}

func TestProcessMeeting_PlainText(t *testing.T) {
	agents, repo, _ := setup(t, llm.Text("Nothing to record."))
	ctx := context.Background()

	res, err := agents.ProcessMeeting(ctx, owner, budgetMeeting)
	require.NoError(t, err)
	assert.False(t, res.ToolCalled)

	sums, _ := repo.ListSummaries(ctx, owner)
	assert.Empty(t, sums)
}

func TestProcessMeeting_MissingFields(t *testing.T) {
	agents, _, _ := setup(t)
	_, err := agents.ProcessMeeting(context.Background(), owner, extract.Meeting{Title: "x"})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "Missing title or transcript", ve.Reason)
}
