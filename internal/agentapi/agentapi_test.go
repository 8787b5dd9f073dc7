package agentapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/agentapi"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/fixtures"
	"github.com/taskhive/taskhive/internal/jobs"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
	"github.com/taskhive/taskhive/internal/testutil"
)

type env struct {
	repo   *repository.Service
	model  *llm.Scripted
	svc    *agentapi.Service
	router http.Handler
}

func setup(t *testing.T, replies ...llm.Reply) *env {
	t.Helper()
	quiet := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store := testutil.TestStore(t)
	repo := repository.New(store, repository.WithLocation(time.UTC))
	model := llm.NewScripted(replies...)
	agents := extract.New(repo, model, model, extract.WithLogger(quiet))
	runner := jobs.NewRunner(store, jobs.WithLogger(quiet))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = runner.Wait(ctx)
	})

	svc := agentapi.NewService(agents, runner)
	return &env{repo: repo, model: model, svc: svc, router: agentapi.NewRouter(svc, testutil.Owner)}
}

func (e *env) post(t *testing.T, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if owner != "" {
		req.Header.Set(auth.HeaderOwner, owner)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) job(t *testing.T, id, owner string) (int, models.Job) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
	req.Header.Set(auth.HeaderOwner, owner)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var job models.Job
	_ = json.Unmarshal(w.Body.Bytes(), &job)
	return w.Code, job
}

func (e *env) waitJob(t *testing.T, id, owner string) models.Job {
	t.Helper()
	var job models.Job
	testutil.Eventually(t, 3*time.Second, 10*time.Millisecond, func() bool {
		_, job = e.job(t, id, owner)
		return job.Status == models.JobDone || job.Status == models.JobFailed
	}, "job never finished")
	return job
}

func tasksCall(t *testing.T, titles ...string) llm.Reply {
	t.Helper()
	items := make([]map[string]string, len(titles))
	for i, title := range titles {
		items[i] = map[string]string{"title": title}
	}
	raw, err := json.Marshal(map[string]any{"tasks": items})
	require.NoError(t, err)
	return llm.Calls(llm.ToolCall{ID: "c1", Name: extract.EmailTool, Arguments: raw})
}

func TestProcessEmail_AcceptedAndRecorded(t *testing.T) {
	e := setup(t, tasksCall(t, "Review budget", "Reply to CFO"))

	w := e.post(t, "/process/email", "alice", extract.Email{Subject: "Budget", Body: "Please review."})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp agentapi.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agentapi.EmailStarted, resp.Message)
	require.NotEmpty(t, resp.JobID)

	job := e.waitJob(t, resp.JobID, "alice")
	assert.Equal(t, models.JobDone, job.Status)
	assert.Equal(t, models.JobEmail, job.Kind)
	assert.Equal(t, "Created 2 tasks.", job.Result)

	tasks, err := e.repo.ListTasks(context.Background(), "alice", models.FilterAll, 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestProcessEmail_MissingFields(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/process/email", "", map[string]string{"subject": "only subject"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing subject or body"}`, w.Body.String())
	assert.Empty(t, e.model.Requests())
}

func TestProcessMeeting_MissingFields(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/process/meeting", "", map[string]string{"transcript": "words"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing title or transcript"}`, w.Body.String())
}

func TestProcessMeeting_FailureRecordedOnJob(t *testing.T) {
	e := setup(t, llm.Fail(io.ErrUnexpectedEOF))

	w := e.post(t, "/process/meeting", "", extract.Meeting{Title: "Retro", Transcript: "Bob: fix CI."})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp agentapi.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agentapi.MeetingStarted, resp.Message)

	job := e.waitJob(t, resp.JobID, testutil.Owner)
	assert.Equal(t, models.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestProcessMeeting_OversizedBodyRejected(t *testing.T) {
	e := setup(t)
	w := e.post(t, "/process/meeting", "", extract.Meeting{
		Title:      "All-day offsite",
		Transcript: strings.Repeat("a", agentapi.MaxBodyBytes),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, e.model.Requests())
}

func TestGetJob_NotFoundAndForeignOwner(t *testing.T) {
	e := setup(t, tasksCall(t, "x"))

	code, _ := e.job(t, "missing", testutil.Owner)
	assert.Equal(t, http.StatusNotFound, code)

	w := e.post(t, "/process/email", "alice", extract.Email{Subject: "s", Body: "b"})
	var resp agentapi.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	e.waitJob(t, resp.JobID, "alice")

	code, _ = e.job(t, resp.JobID, "mallory")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestInboxHandler(t *testing.T) {
	e := setup(t, tasksCall(t, "From inbox"))
	handle := e.svc.InboxHandler("carol")

	require.NoError(t, handle(context.Background(), &fixtures.Document{
		Kind: fixtures.KindEmail, Subject: "Dropped", Body: "Do the thing.",
	}))
	assert.Error(t, handle(context.Background(), &fixtures.Document{Kind: fixtures.KindMeeting}))

	testutil.Eventually(t, 3*time.Second, 10*time.Millisecond, func() bool {
		tasks, _ := e.repo.ListTasks(context.Background(), "carol", models.FilterAll, 0)
		return len(tasks) == 1
	}, "inbox email was not processed")
}
