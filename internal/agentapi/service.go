// Package agentapi is the internal agent-trigger service: it validates
// inbound emails and transcripts, queues extraction jobs and reports them.
package agentapi

import (
	"context"

	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/fixtures"
	"github.com/taskhive/taskhive/internal/jobs"
	"github.com/taskhive/taskhive/internal/models"
)

// Extractor runs the extraction pipelines.
type Extractor interface {
	ProcessEmail(ctx context.Context, owner string, e extract.Email) (*extract.Result, error)
	ProcessMeeting(ctx context.Context, owner string, m extract.Meeting) (*extract.Result, error)
}

// Service queues extraction runs on a job runner.
type Service struct {
	agents Extractor
	runner *jobs.Runner
}

// NewService creates a Service.
func NewService(agents Extractor, runner *jobs.Runner) *Service {
	return &Service{agents: agents, runner: runner}
}

// SubmitEmail validates e and queues its extraction for owner.
func (s *Service) SubmitEmail(ctx context.Context, owner string, e extract.Email) (*models.Job, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, owner, models.JobEmail, func(ctx context.Context) (string, error) {
		res, err := s.agents.ProcessEmail(ctx, owner, e)
		if err != nil {
			return "", err
		}
		return res.Message, nil
	})
}

// SubmitMeeting validates m and queues its summarisation for owner.
func (s *Service) SubmitMeeting(ctx context.Context, owner string, m extract.Meeting) (*models.Job, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, owner, models.JobMeeting, func(ctx context.Context) (string, error) {
		res, err := s.agents.ProcessMeeting(ctx, owner, m)
		if err != nil {
			return "", err
		}
		return res.Message, nil
	})
}

// Job returns owner's job record.
func (s *Service) Job(ctx context.Context, owner, id string) (*models.Job, error) {
	return s.runner.Get(ctx, owner, id)
}

// InboxHandler queues inbox documents for owner.
func (s *Service) InboxHandler(owner string) fixtures.Handler {
	return func(ctx context.Context, doc *fixtures.Document) error {
		var err error
		switch doc.Kind {
		case fixtures.KindMeeting:
			_, err = s.SubmitMeeting(ctx, owner, extract.Meeting{Title: doc.Title, Transcript: doc.Body})
		default:
			_, err = s.SubmitEmail(ctx, owner, extract.Email{From: doc.From, Subject: doc.Subject, Body: doc.Body})
		}
		return err
	}
}
