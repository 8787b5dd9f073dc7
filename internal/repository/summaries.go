package repository

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/models"
)

// NewSummary is the input for CreateSummary.
type NewSummary struct {
	Type        models.SummaryType `json:"type"`
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	ActionItems []string           `json:"actionItems"`
	Origin      string             `json:"sourceOrigin"`
}

// Validate implements validation.Validatable.
func (n NewSummary) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Type, validation.Required, validation.In(models.SummaryMeeting, models.SummaryDocument)),
		validation.Field(&n.Title, validation.Required.Error("is required")),
		validation.Field(&n.Content, validation.Required.Error("is required")),
		validation.Field(&n.Origin, validation.Required.Error("is required")),
	)
}

// CreateSummary stores an immutable summary for owner.
func (s *Service) CreateSummary(ctx context.Context, owner string, in NewSummary) (*models.Summary, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := in.Validate(); err != nil {
		return nil, asValidation(err)
	}
	items := in.ActionItems
	if items == nil {
		items = []string{}
	}

	sum := models.Summary{
		UserID:       owner,
		Type:         in.Type,
		Title:        in.Title,
		Content:      in.Content,
		ActionItems:  items,
		SourceOrigin: in.Origin,
		CreatedAt:    docstore.FormatTime(s.now()),
	}
	id, err := s.store.Add(ctx, summariesCollection, sum)
	if err != nil {
		return nil, fmt.Errorf("repository: create summary: %w", err)
	}
	sum.ID = id
	s.notify(owner, EventSummaryCreated, sum)
	return &sum, nil
}

// ListSummaries returns the owner's most recent summaries, newest first.
func (s *Service) ListSummaries(ctx context.Context, owner string) ([]models.Summary, error) {
	docs, err := s.store.Query(ctx, summariesCollection, docstore.Query{
		Where:   []docstore.Predicate{docstore.Where("userId", docstore.Eq, owner)},
		OrderBy: &docstore.Order{Field: "createdAt", Direction: docstore.Desc},
		Limit:   summariesLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("repository: list summaries: %w", err)
	}
	out := make([]models.Summary, 0, len(docs))
	for _, d := range docs {
		var sum models.Summary
		if err := d.Decode(&sum); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListIntegrations returns owner's integrations, or an empty slice.
func (s *Service) ListIntegrations(ctx context.Context, owner string) ([]models.Integration, error) {
	docs, err := s.store.Query(ctx, integrationsCollection, docstore.Query{
		Where: []docstore.Predicate{docstore.Where("userId", docstore.Eq, owner)},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: list integrations: %w", err)
	}
	out := make([]models.Integration, 0, len(docs))
	for _, d := range docs {
		var in models.Integration
		if err := d.Decode(&in); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// SeedIntegrations stores the default integrations for owner unless owner
// already has some. It reports how many were added.
func (s *Service) SeedIntegrations(ctx context.Context, owner string) (int, error) {
	n, err := s.store.Count(ctx, integrationsCollection, []docstore.Predicate{docstore.Where("userId", docstore.Eq, owner)})
	if err != nil {
		return 0, fmt.Errorf("repository: count integrations: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, in := range models.DefaultIntegrations {
		in.UserID = owner
		if _, err := s.store.Add(ctx, integrationsCollection, in); err != nil {
			return 0, fmt.Errorf("repository: seed %s: %w", in.Provider, err)
		}
	}
	return len(models.DefaultIntegrations), nil
}
