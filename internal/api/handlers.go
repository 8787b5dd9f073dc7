package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
)

// Manual task origin recorded for tasks created from the UI.
const manualOrigin = "TaskHive UI"

const syncStarted = "Sync triggered. New tasks will appear shortly."

// Repository is the subset of the task repository the API serves.
type Repository interface {
	KPIs(ctx context.Context, owner string) (models.KPIs, error)
	ListTasks(ctx context.Context, owner string, filter models.TaskFilter, limit int) ([]models.Task, error)
	CreateTask(ctx context.Context, owner string, in repository.NewTask) (*models.Task, error)
	UpdateTaskAction(ctx context.Context, owner, id string, action models.TaskAction) (*models.Task, error)
	ListSummaries(ctx context.Context, owner string) ([]models.Summary, error)
	ListIntegrations(ctx context.Context, owner string) ([]models.Integration, error)
}

// Assistant answers chat prompts.
type Assistant interface {
	Send(ctx context.Context, owner, sessionID, prompt string) string
}

// SyncTrigger starts a background fixture sync.
type SyncTrigger interface {
	Trigger(ctx context.Context, owner string)
}

// Handler holds API route handlers.
type Handler struct {
	repo      Repository
	assistant Assistant
	sync      SyncTrigger
}

// NewHandler creates a new Handler.
func NewHandler(repo Repository, assistant Assistant, sync SyncTrigger) *Handler {
	return &Handler{repo: repo, assistant: assistant, sync: sync}
}

// KPIs handles GET /api/kpis.
//
//	@Summary		Dashboard counters
//	@Tags			tasks
//	@Produce		json
//	@Success		200	{object}	KPIs
//	@Security		BearerAuth
//	@Router			/kpis [get]
func (h *Handler) KPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.repo.KPIs(r.Context(), owner(r))
	if err != nil {
		writeError(w, "kpis", err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

// ListTasks handles GET /api/tasks.
//
//	@Summary		List tasks for a filter
//	@Tags			tasks
//	@Produce		json
//	@Param			filter	query	string	false	"Task filter"	Enums(overdue, due_today, all, ingested, action_required, waiting_on, fyi)
//	@Success		200		{array}	Task
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter := models.TaskFilter(r.URL.Query().Get("filter"))
	tasks, err := h.repo.ListTasks(r.Context(), owner(r), filter, 0)
	if err != nil {
		writeError(w, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /api/tasks.
//
//	@Summary		Create a manual task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateTaskRequest	true	"Task to create"
//	@Success		201		{object}	Task
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks [post]
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	task, err := h.repo.CreateTask(r.Context(), owner(r), repository.NewTask{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		Source:      models.Source{Type: models.SourceManual, Origin: manualOrigin},
	})
	if err != nil {
		writeError(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// TaskAction handles POST /api/tasks/{id}/action.
//
//	@Summary		Complete, snooze or block a task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Task id"
//	@Param			body	body		TaskActionRequest	true	"Action"
//	@Success		200		{object}	Task
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id}/action [post]
func (h *Handler) TaskAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req TaskActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	task, err := h.repo.UpdateTaskAction(r.Context(), owner(r), id, models.TaskAction(req.Action))
	if errors.Is(err, apperr.ErrInvalidArgument) {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid action"))
		return
	}
	if err != nil {
		writeError(w, "task action", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListSummaries handles GET /api/summaries.
//
//	@Summary		Recent meeting and document summaries
//	@Tags			summaries
//	@Produce		json
//	@Success		200	{array}	Summary
//	@Security		BearerAuth
//	@Router			/summaries [get]
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	sums, err := h.repo.ListSummaries(r.Context(), owner(r))
	if err != nil {
		writeError(w, "list summaries", err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// ListIntegrations handles GET /api/settings/integrations.
//
//	@Summary		Configured integrations
//	@Tags			settings
//	@Produce		json
//	@Success		200	{array}	Integration
//	@Security		BearerAuth
//	@Router			/settings/integrations [get]
func (h *Handler) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListIntegrations(r.Context(), owner(r))
	if err != nil {
		writeError(w, "list integrations", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Sync handles POST /api/settings/sync.
//
//	@Summary		Send the demo email and meeting to the agent service
//	@Tags			settings
//	@Produce		json
//	@Success		202	{object}	MessageResponse
//	@Security		BearerAuth
//	@Router			/settings/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	o := owner(r)
	h.sync.Trigger(r.Context(), o)
	slog.Info("sync triggered", slog.String("owner", o))
	writeJSON(w, http.StatusAccepted, MessageResponse{Message: syncStarted})
}

// Chat handles POST /api/agent/chat.
//
//	@Summary		Ask the assistant
//	@Tags			agent
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChatRequest	true	"Prompt"
//	@Success		200		{object}	ChatResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/agent/chat [post]
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("Prompt is required"))
		return
	}
	text := h.assistant.Send(r.Context(), owner(r), req.SessionID, req.Prompt)
	writeJSON(w, http.StatusOK, ChatResponse{Role: "model", Text: text})
}
