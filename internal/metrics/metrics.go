// Package metrics exposes Prometheus collectors for HTTP traffic, model
// calls, chat tool routing and background jobs.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskhive/taskhive/internal/llm"
	"github.com/taskhive/taskhive/internal/models"
)

const namespace = "taskhive"

// Metrics holds every collector. A nil *Metrics is a valid no-op.
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	llmRequests  *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
}

// MustNewMetrics constructs and registers the collectors on reg.
// Registration errors panic, mirroring promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Model completion calls by model and outcome.",
		}, []string{"model", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Model completion latency.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"model"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "tool_calls_total",
			Help:      "Tool calls routed by the chat loop by tool and outcome.",
		}, []string{"tool", "outcome"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Finished extraction jobs by kind and final status.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Extraction job run time.",
			Buckets:   []float64{.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration, m.llmRequests, m.llmDuration, m.toolCalls, m.jobs, m.jobDuration)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveTool implements chat.ToolObserver.
func (m *Metrics) ObserveTool(name, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(name, outcome).Inc()
}

// ObserveJob implements jobs.Observer.
func (m *Metrics) ObserveJob(kind models.JobKind, status models.JobStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(kind), string(status)).Inc()
	m.jobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// InstrumentLLM wraps c so every completion call is counted and timed.
func (m *Metrics) InstrumentLLM(c llm.Client, model string) llm.Client {
	if m == nil {
		return c
	}
	return &instrumentedLLM{next: c, model: model, m: m}
}

type instrumentedLLM struct {
	next  llm.Client
	model string
	m     *Metrics
}

func (c *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	c.m.llmDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

	outcome := "text"
	switch {
	case err != nil:
		outcome = "error"
	case len(resp.ToolCalls) > 0:
		outcome = "tool_calls"
	}
	c.m.llmRequests.WithLabelValues(c.model, outcome).Inc()
	return resp, err
}
