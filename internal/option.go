package internal

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taskhive/taskhive/internal/llm"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	models   map[string]llm.Client
	registry *prometheus.Registry
	logOut   io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithModel replaces the client used for the named model instead of
// dialling the configured endpoint.
func WithModel(name string, c llm.Client) Option {
	return func(a *application) {
		if a.models == nil {
			a.models = map[string]llm.Client{}
		}
		a.models[name] = c
	}
}

// WithRegistry sets the Prometheus registry metrics are registered on.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *application) {
		a.registry = reg
	}
}

// WithLogOutput redirects the JSON log stream (stdout by default).
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}
