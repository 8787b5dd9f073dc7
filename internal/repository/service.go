// Package repository implements the task, summary and integration operations
// on top of the document store. Every call is scoped to an owner id.
package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/models"
)

const (
	tasksCollection        = "tasks"
	summariesCollection    = "summaries"
	integrationsCollection = "integrations"
)

// DefaultPageSize bounds task listings when no explicit limit is given.
const DefaultPageSize = 50

const summariesLimit = 20

// Change event kinds passed to a Notifier.
const (
	EventTaskCreated    = "task.created"
	EventTaskUpdated    = "task.updated"
	EventSummaryCreated = "summary.created"
)

// Notifier receives a change event after every successful write. Events
// are scoped to the owner of the changed record.
type Notifier interface {
	Notify(owner, kind string, payload any)
}

// Service coordinates document store operations for tasks and summaries.
type Service struct {
	store    docstore.Store
	now      func() time.Time
	loc      *time.Location
	pageSize int
	notifier Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used for "today" boundaries and zone-less due dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithPageSize sets the default task listing limit.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithNotifier registers a change listener.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New creates a repository service.
func New(store docstore.Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		loc:      time.Local,
		pageSize: DefaultPageSize,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Now returns the service clock's current time in its location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// NewTask is the input for CreateTask.
type NewTask struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	DueDate     string        `json:"dueDate"`
	Source      models.Source `json:"source"`
}

// Validate implements validation.Validatable.
func (n NewTask) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Title, validation.Required.Error("is required")),
		validation.Field(&n.Priority, validation.In(priorityValues()...).Error("must be one of low, medium, high, critical")),
	)
}

func priorityValues() []any {
	out := make([]any, len(models.Priorities))
	for i, p := range models.Priorities {
		out[i] = string(p)
	}
	return out
}

// ListTasks returns the owner's tasks shaped by filter. Unknown filters fall
// back to FilterAll. A non-positive limit uses the configured page size.
func (s *Service) ListTasks(ctx context.Context, owner string, filter models.TaskFilter, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	q := s.taskQuery(owner, filter)
	q.Limit = limit

	docs, err := s.store.Query(ctx, tasksCollection, q)
	if err != nil {
		return nil, fmt.Errorf("repository: list tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(docs))
	for _, d := range docs {
		var t models.Task
		if err := d.Decode(&t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (s *Service) taskQuery(owner string, filter models.TaskFilter) docstore.Query {
	byOwner := docstore.Where("userId", docstore.Eq, owner)
	newestFirst := &docstore.Order{Field: "createdAt", Direction: docstore.Desc}

	switch filter {
	case models.FilterOverdue:
		return docstore.Query{
			Where:   append([]docstore.Predicate{byOwner}, s.overdue()...),
			OrderBy: &docstore.Order{Field: "dueAt", Direction: docstore.Asc},
		}
	case models.FilterDueToday:
		return docstore.Query{
			Where:   append([]docstore.Predicate{byOwner}, s.dueToday()...),
			OrderBy: &docstore.Order{Field: "dueAt", Direction: docstore.Asc},
		}
	case models.FilterActionRequired:
		return docstore.Query{
			Where: []docstore.Predicate{byOwner,
				docstore.Where("status", docstore.In, []models.TaskStatus{models.StatusTodo, models.StatusInProgress})},
			OrderBy: newestFirst,
		}
	case models.FilterWaitingOn:
		return docstore.Query{
			Where:   []docstore.Predicate{byOwner, docstore.Where("status", docstore.Eq, models.StatusBlocked)},
			OrderBy: newestFirst,
		}
	case models.FilterFYI:
		return docstore.Query{
			Where:   []docstore.Predicate{byOwner, docstore.Where("status", docstore.Eq, models.StatusDone)},
			OrderBy: &docstore.Order{Field: "updatedAt", Direction: docstore.Desc},
		}
	default:
		return docstore.Query{Where: []docstore.Predicate{byOwner}, OrderBy: newestFirst}
	}
}

func (s *Service) overdue() []docstore.Predicate {
	return []docstore.Predicate{
		docstore.Where("dueAt", docstore.Lt, s.now()),
		docstore.Where("status", docstore.Ne, models.StatusDone),
	}
}

func (s *Service) dueToday() []docstore.Predicate {
	start, end := dayBounds(s.Now())
	return []docstore.Predicate{
		docstore.Where("dueAt", docstore.Gte, start),
		docstore.Where("dueAt", docstore.Lte, end),
		docstore.Where("status", docstore.Ne, models.StatusDone),
	}
}

// dayBounds returns the first and last millisecond of t's calendar day in t's zone.
func dayBounds(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Millisecond)
}

// CreateTask validates in and stores a new todo task for owner.
// Nothing is written when validation fails.
func (s *Service) CreateTask(ctx context.Context, owner string, in NewTask) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Priority = strings.ToLower(strings.TrimSpace(in.Priority))
	if err := in.Validate(); err != nil {
		return nil, asValidation(err)
	}
	if in.Priority == "" {
		in.Priority = string(models.PriorityMedium)
	}

	var dueAt *string
	if strings.TrimSpace(in.DueDate) != "" {
		due, err := ParseDue(in.DueDate, s.loc)
		if err != nil {
			return nil, apperr.Validation("dueDate", err.Error())
		}
		v := docstore.FormatTime(due)
		dueAt = &v
	}

	now := docstore.FormatTime(s.now())
	task := models.Task{
		UserID:      owner,
		Title:       in.Title,
		Description: in.Description,
		Status:      models.StatusTodo,
		Priority:    models.TaskPriority(in.Priority),
		DueAt:       dueAt,
		Source:      in.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	id, err := s.store.Add(ctx, tasksCollection, task)
	if err != nil {
		return nil, fmt.Errorf("repository: create task: %w", err)
	}
	task.ID = id
	s.notify(owner, EventTaskCreated, task)
	return &task, nil
}

// UpdateTaskAction applies action to the owner's task and returns the result.
// Unknown actions fail with apperr.ErrInvalidArgument before any read or write.
func (s *Service) UpdateTaskAction(ctx context.Context, owner, id string, action models.TaskAction) (*models.Task, error) {
	now := s.now()
	patch := map[string]any{"updatedAt": now}
	switch action {
	case models.ActionComplete:
		patch["status"] = models.StatusDone
	case models.ActionSnooze1D:
		patch["dueAt"] = now.Add(24 * time.Hour)
	case models.ActionBlock:
		patch["status"] = models.StatusBlocked
	default:
		return nil, fmt.Errorf("repository: action %q: %w", action, apperr.ErrInvalidArgument)
	}

	if _, err := s.getTask(ctx, owner, id); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, tasksCollection, id, patch); err != nil {
		return nil, fmt.Errorf("repository: update task: %w", err)
	}
	task, err := s.getTask(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	s.notify(owner, EventTaskUpdated, *task)
	return task, nil
}

// GetTask returns one of owner's tasks.
func (s *Service) GetTask(ctx context.Context, owner, id string) (*models.Task, error) {
	return s.getTask(ctx, owner, id)
}

func (s *Service) getTask(ctx context.Context, owner, id string) (*models.Task, error) {
	doc, err := s.store.Get(ctx, tasksCollection, id)
	if err != nil {
		return nil, err
	}
	var t models.Task
	if err := doc.Decode(&t); err != nil {
		return nil, err
	}
	// Foreign tasks are indistinguishable from missing ones.
	if t.UserID != owner {
		return nil, fmt.Errorf("repository: task %s: %w", id, apperr.ErrNotFound)
	}
	return &t, nil
}

// KPIs counts overdue, due-today and incoming (todo) tasks for owner.
func (s *Service) KPIs(ctx context.Context, owner string) (models.KPIs, error) {
	byOwner := docstore.Where("userId", docstore.Eq, owner)

	var k models.KPIs
	var err error
	if k.Overdue, err = s.store.Count(ctx, tasksCollection, append([]docstore.Predicate{byOwner}, s.overdue()...)); err != nil {
		return models.KPIs{}, fmt.Errorf("repository: count overdue: %w", err)
	}
	if k.DueToday, err = s.store.Count(ctx, tasksCollection, append([]docstore.Predicate{byOwner}, s.dueToday()...)); err != nil {
		return models.KPIs{}, fmt.Errorf("repository: count due today: %w", err)
	}
	if k.Incoming, err = s.store.Count(ctx, tasksCollection, []docstore.Predicate{
		byOwner, docstore.Where("status", docstore.Eq, models.StatusTodo),
	}); err != nil {
		return models.KPIs{}, fmt.Errorf("repository: count incoming: %w", err)
	}
	return k, nil
}

func (s *Service) notify(owner, kind string, payload any) {
	if s.notifier != nil {
		s.notifier.Notify(owner, kind, payload)
	}
}

// ParseDue parses a due date. Accepted forms are RFC 3339, RFC 3339 without a
// zone and a bare date; zone-less forms are read in loc.
func ParseDue(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", value)
}

// asValidation converts ozzo-validation errors into an apperr.ValidationError
// for the first offending field, in name order.
func asValidation(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return err
	}
	fields := make([]string, 0, len(errs))
	for f := range errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return apperr.Validation(fields[0], errs[fields[0]].Error())
}
