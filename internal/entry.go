// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/taskhive/taskhive/internal/agentapi"
	"github.com/taskhive/taskhive/internal/api"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/chat"
	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/fixtures"
	"github.com/taskhive/taskhive/internal/jobs"
	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/mcpserver"
	"github.com/taskhive/taskhive/internal/metrics"
	"github.com/taskhive/taskhive/internal/repository"
	"github.com/taskhive/taskhive/internal/sse"
	"github.com/taskhive/taskhive/internal/storage"
	"github.com/taskhive/taskhive/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the pieces shared by every service.
type runtime struct {
	app     *application
	cfg     *Config
	logger  *slog.Logger
	db      *docstore.DB
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	broker  *sse.Broker
	repo    *repository.Service
}

func start(opts []Option) (*runtime, error) {
	app := &application{logOut: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("api_address", cfg.App.HTTP.Address()),
		slog.String("agents_address", cfg.Agents.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := docstore.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	reg := app.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	broker := sse.NewBroker(cfg.App.KPIThrottle)
	return &runtime{
		app:     app,
		cfg:     cfg,
		logger:  logger,
		db:      db,
		reg:     reg,
		metrics: metrics.MustNewMetrics(reg),
		broker:  broker,
		repo:    repository.New(db, repository.WithNotifier(broker)),
	}, nil
}

func (rt *runtime) close() {
	rt.broker.Close()
	if err := rt.db.Close(); err != nil {
		rt.logger.Warn("close store failed", slog.String("error", err.Error()))
	}
}

// model returns the client for name, instrumented.
func (rt *runtime) model(name string) llm.Client {
	c, ok := rt.app.models[name]
	if !ok {
		oc := rt.cfg.Model.Client(name)
		rt.logger.Info("Model client ready",
			slog.String("model", oc.Model()),
			slog.String("base_url", rt.cfg.Model.BaseURL))
		c = oc
	}
	return rt.metrics.InstrumentLLM(c, name)
}

func (rt *runtime) agents() *extract.Agents {
	return extract.New(rt.repo,
		rt.model(rt.cfg.Model.EmailModel),
		rt.model(rt.cfg.Model.MeetingModel),
		extract.WithLogger(rt.logger))
}

func (rt *runtime) fixtureStore() (*storage.FS, error) {
	if err := os.MkdirAll(rt.cfg.Sync.FixturesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create fixtures dir: %w", err)
	}
	return storage.NewFS(rt.cfg.Sync.FixturesDir)
}

func (rt *runtime) seed(ctx context.Context) {
	if !rt.cfg.Integrations.Seed {
		return
	}
	n, err := rt.repo.SeedIntegrations(ctx, rt.cfg.Auth.DefaultOwner)
	if err != nil {
		rt.logger.Warn("seed integrations failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		rt.logger.Info("seeded integrations", slog.Int("count", n), slog.String("owner", rt.cfg.Auth.DefaultOwner))
	}
}

// baseRouter carries the middleware stack, health checks and /metrics.
func (rt *runtime) baseRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(rt.metrics.Middleware)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		if err := rt.db.Ping(); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(rt.reg))
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// apiServer builds the public API server.
func (rt *runtime) apiServer() (*http.Server, *syncer.Syncer, error) {
	cfg := rt.cfg
	store, err := rt.fixtureStore()
	if err != nil {
		return nil, nil, err
	}
	sync := syncer.New(cfg.Sync.AgentServiceURL, store,
		syncer.WithTimeout(cfg.Sync.Timeout),
		syncer.WithLogger(rt.logger))

	assistant := chat.New(rt.model(cfg.Model.ChatModel), rt.repo,
		chat.WithMaxRounds(cfg.Chat.MaxRounds),
		chat.WithSessionTTL(cfg.Chat.SessionTTL),
		chat.WithMaxSessions(cfg.Chat.MaxSessions),
		chat.WithLogger(rt.logger),
		chat.WithToolObserver(rt.metrics))

	h := api.NewHandler(rt.repo, assistant, sync)
	authMW := auth.Middleware(cfg.Auth.Mode, cfg.Auth.DefaultOwner, cfg.Auth.Tokens)
	if !cfg.Auth.AuthEnabled() {
		rt.logger.Warn("Authentication disabled, all requests act as the default owner",
			slog.String("owner", cfg.Auth.DefaultOwner))
	}

	r := rt.baseRouter()
	r.Mount("/api", api.NewRouter(h, authMW, rt.broker))

	return &http.Server{Addr: cfg.App.HTTP.Address(), Handler: r}, sync, nil
}

// agentsServer builds the internal agent-trigger server.
func (rt *runtime) agentsServer() (*http.Server, *agentapi.Service, *jobs.Runner) {
	runner := jobs.NewRunner(rt.db,
		jobs.WithTimeout(rt.cfg.Agents.JobTimeout),
		jobs.WithLogger(rt.logger),
		jobs.WithObserver(rt.metrics))
	svc := agentapi.NewService(rt.agents(), runner)

	r := rt.baseRouter()
	r.Mount("/", agentapi.NewRouter(svc, rt.cfg.Auth.DefaultOwner))
	return &http.Server{Addr: rt.cfg.Agents.HTTP.Address(), Handler: r}, svc, runner
}

// RunAPI starts the public API service.
func RunAPI(ctx context.Context, opts ...Option) error {
	rt, err := start(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.seed(ctx)

	srv, sync, err := rt.apiServer()
	if err != nil {
		return err
	}
	return rt.serve(ctx, []*http.Server{srv}, nil, sync.Wait)
}

// RunAgents starts the internal agent-trigger service.
func RunAgents(ctx context.Context, opts ...Option) error {
	rt, err := start(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	srv, svc, runner := rt.agentsServer()
	workers, err := rt.inboxWorker(svc)
	if err != nil {
		return err
	}
	return rt.serve(ctx, []*http.Server{srv}, workers, runner.Wait)
}

// RunAll starts both services in one process so that records created by
// the agents reach SSE subscribers of the API.
func RunAll(ctx context.Context, opts ...Option) error {
	rt, err := start(opts)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.seed(ctx)

	apiSrv, sync, err := rt.apiServer()
	if err != nil {
		return err
	}
	agentsSrv, svc, runner := rt.agentsServer()
	workers, err := rt.inboxWorker(svc)
	if err != nil {
		return err
	}
	return rt.serve(ctx, []*http.Server{apiSrv, agentsSrv}, workers, sync.Wait, runner.Wait)
}

// RunMCP serves the MCP tools on stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := start(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcpserver.New(rt.repo, rt.agents(), rt.cfg.Auth.DefaultOwner)
	rt.logger.Info("Serving MCP on stdio", slog.String("owner", rt.cfg.Auth.DefaultOwner))
	return srv.ServeStdio()
}

func (rt *runtime) inboxWorker(svc *agentapi.Service) ([]func(context.Context) error, error) {
	if !rt.cfg.Agents.WatchInbox {
		return nil, nil
	}
	store, err := rt.fixtureStore()
	if err != nil {
		return nil, err
	}
	handle := svc.InboxHandler(rt.cfg.Auth.DefaultOwner)
	rt.logger.Info("Watching inbox",
		slog.String("dir", filepath.Join(store.Root(), fixtures.InboxDir)),
		slog.String("owner", rt.cfg.Auth.DefaultOwner))
	return []func(context.Context) error{func(ctx context.Context) error {
		return fixtures.WatchInbox(ctx, store, rt.logger, handle)
	}}, nil
}

// serve runs servers and workers until a signal or ctx ends them, then
// shuts the servers down and drains background work.
func (rt *runtime) serve(ctx context.Context, servers []*http.Server, workers []func(context.Context) error, drain ...func(context.Context) error) error {
	logger := rt.logger
	g, gCtx := errgroup.WithContext(ctx)

	for _, w := range workers {
		g.Go(func() error { return w(gCtx) })
	}

	// Start HTTP servers.
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}
		for _, wait := range drain {
			if err := wait(shutdownCtx); err != nil {
				logger.Warn("background work still running at shutdown", slog.String("error", err.Error()))
			}
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group's context so workers stop with the servers.
var errShutdown = errors.New("shutdown")
