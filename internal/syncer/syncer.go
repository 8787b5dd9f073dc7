// Package syncer pushes the demo fixtures to the agent service.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/fixtures"
	"github.com/taskhive/taskhive/internal/storage"
)

// DefaultTimeout bounds one sync round.
const DefaultTimeout = 30 * time.Second

// Syncer posts fixture documents to /process/email and /process/meeting.
type Syncer struct {
	baseURL string
	store   storage.Provider
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Syncer) { s.client = c }
}

// WithTimeout bounds each round.
func WithTimeout(d time.Duration) Option {
	return func(s *Syncer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// New creates a Syncer targeting the agent service at baseURL. Fixtures are
// read from store; built-in defaults are used when it holds none.
func New(baseURL string, store storage.Provider, opts ...Option) *Syncer {
	s := &Syncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Trigger starts a sync round for owner in the background and returns at
// once. The round is detached from ctx; failures are only logged.
func (s *Syncer) Trigger(ctx context.Context, owner string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.Run(ctx, owner); err != nil {
			s.logger.Error("sync failed", slog.String("owner", owner), slog.String("error", err.Error()))
		}
	}()
}

// Run posts every fixture concurrently and returns the first failure.
func (s *Syncer) Run(ctx context.Context, owner string) error {
	var docs []fixtures.Document
	if s.store != nil {
		loaded, err := fixtures.Load(s.store, s.logger)
		if err != nil {
			return err
		}
		docs = loaded
	} else {
		docs = fixtures.Defaults()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, doc := range docs {
		g.Go(func() error {
			return s.post(ctx, owner, doc)
		})
	}
	return g.Wait()
}

// Wait blocks until background rounds finish or ctx is done.
func (s *Syncer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) post(ctx context.Context, owner string, doc fixtures.Document) error {
	path, payload := request(doc)
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("syncer: encode %s: %w", doc.Kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("syncer: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderOwner, owner)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("syncer: post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("syncer: post %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	s.logger.Info("fixture sent", slog.String("kind", string(doc.Kind)), slog.String("path", path))
	return nil
}

func request(doc fixtures.Document) (string, map[string]string) {
	if doc.Kind == fixtures.KindMeeting {
		return "/process/meeting", map[string]string{"title": doc.Title, "transcript": doc.Body}
	}
	return "/process/email", map[string]string{"from": doc.From, "subject": doc.Subject, "body": doc.Body}
}
