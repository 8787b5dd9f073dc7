package agentapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/models"
)

// Accepted messages.
const (
	EmailStarted   = "Email agent processing started"
	MeetingStarted = "Meeting agent processing started"
)

// AcceptedResponse is returned when a job is queued.
type AcceptedResponse struct {
	Message string `json:"message" validate:"required"`
	JobID   string `json:"jobId" validate:"required"`
}

// MaxBodyBytes caps request bodies, transcripts included.
const MaxBodyBytes = 1 << 20

type errResponse struct {
	Error string `json:"error"`
}

// Handler holds agent service route handlers.
type Handler struct {
	svc *Service
}

// NewRouter mounts the agent routes. Owners are taken from the trusted
// X-Owner-ID header, falling back to defaultOwner.
func NewRouter(svc *Service, defaultOwner string) chi.Router {
	h := &Handler{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestSize(MaxBodyBytes))
	r.Use(auth.TrustedHeader(defaultOwner))
	r.Post("/process/email", h.ProcessEmail)
	r.Post("/process/meeting", h.ProcessMeeting)
	r.Get("/jobs/{id}", h.GetJob)
	return r
}

// ProcessEmail handles POST /process/email.
//
//	@Summary		Queue task extraction for an email
//	@Tags			agents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		extract.Email	true	"Email"
//	@Success		202		{object}	AcceptedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Router			/process/email [post]
func (h *Handler) ProcessEmail(w http.ResponseWriter, r *http.Request) {
	var in extract.Email
	if !decodeBody(w, r, &in) {
		return
	}
	job, err := h.svc.SubmitEmail(r.Context(), auth.Owner(r.Context()), in)
	h.accepted(w, job, err, EmailStarted)
}

// ProcessMeeting handles POST /process/meeting.
//
//	@Summary		Queue summarisation for a meeting transcript
//	@Tags			agents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		extract.Meeting	true	"Transcript"
//	@Success		202		{object}	AcceptedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Router			/process/meeting [post]
func (h *Handler) ProcessMeeting(w http.ResponseWriter, r *http.Request) {
	var in extract.Meeting
	if !decodeBody(w, r, &in) {
		return
	}
	job, err := h.svc.SubmitMeeting(r.Context(), auth.Owner(r.Context()), in)
	h.accepted(w, job, err, MeetingStarted)
}

// decodeBody reads a JSON body into v, answering 413 past MaxBodyBytes and
// 400 for anything unparsable.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errResponse{Error: "request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid JSON body"})
	return false
}

// GetJob handles GET /jobs/{id}.
//
//	@Summary		Get an extraction job
//	@Tags			agents
//	@Produce		json
//	@Param			id	path		string	true	"Job id"
//	@Success		200	{object}	models.Job
//	@Failure		404	{object}	errResponse
//	@Router			/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(r.Context(), auth.Owner(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errResponse{Error: "not found"})
			return
		}
		slog.Error("get job failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) accepted(w http.ResponseWriter, job *models.Job, err error, msg string) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: ve.Reason})
	case err != nil:
		slog.Error("queue job failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "internal error"})
	default:
		writeJSON(w, http.StatusAccepted, AcceptedResponse{Message: msg, JobID: job.ID})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
