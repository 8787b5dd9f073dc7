package extract_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
	"github.com/taskhive/taskhive/internal/testutil"
)

// providerReplying serves one chat completion whose only tool call carries
// arguments verbatim.
func providerReplying(t *testing.T, tool, arguments string) llm.Client {
	t.Helper()
	reply := map[string]any{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gemini-2.5-flash",
		"choices": []any{map[string]any{
			"index": 0, "finish_reason": "tool_calls",
			"message": map[string]any{
				"role": "assistant", "content": nil,
				"tool_calls": []any{map[string]any{
					"id": "call_1", "type": "function",
					"function": map[string]any{"name": tool, "arguments": arguments},
				}},
			},
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return llm.NewOpenAIClient("gemini-2.5-flash", llm.Config{BaseURL: srv.URL + "/", APIKey: "test-key"})
}

func TestProcessEmail_TruncatedArgumentsAreUpstreamFailure(t *testing.T) {
	repo := testutil.TestRepo(t, repository.WithClock(testutil.FixedClock(now)))
	model := providerReplying(t, extract.EmailTool, `{"tasks":[{"title":"Review budget"}`)
	agents := extract.New(repo, model, model, extract.WithClock(testutil.FixedClock(now)))
	ctx := context.Background()

	res, err := agents.ProcessEmail(ctx, owner, budgetEmail)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, apperr.ErrUpstream), "err = %v", err)

	tasks, _ := repo.ListTasks(ctx, owner, models.FilterAll, 0)
	assert.Empty(t, tasks)
}

func TestProcessMeeting_GarbledArgumentsAreUpstreamFailure(t *testing.T) {
	repo := testutil.TestRepo(t, repository.WithClock(testutil.FixedClock(now)))
	model := providerReplying(t, extract.MeetingTool, `summaryContent: not json`)
	agents := extract.New(repo, model, model, extract.WithClock(testutil.FixedClock(now)))
	ctx := context.Background()

	_, err := agents.ProcessMeeting(ctx, owner, budgetMeeting)
	assert.True(t, errors.Is(err, apperr.ErrUpstream), "err = %v", err)

	sums, _ := repo.ListSummaries(ctx, owner)
	assert.Empty(t, sums)
}

func TestProcessEmail_ValidArgumentsOverProvider(t *testing.T) {
	repo := testutil.TestRepo(t, repository.WithClock(testutil.FixedClock(now)))
	model := providerReplying(t, extract.EmailTool, `{"tasks":[{"title":"Review budget","priority":"high"}]}`)
	agents := extract.New(repo, model, model, extract.WithClock(testutil.FixedClock(now)))

	res, err := agents.ProcessEmail(context.Background(), owner, budgetEmail)
	require.NoError(t, err)
	assert.Equal(t, "Created 1 tasks.", res.Message)
}
