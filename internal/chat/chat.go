// Package chat runs the conversational agent: a per-session history, a
// closed set of task tools, and a bounded model/tool loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/taskhive/taskhive/internal/llm"
)

// Fixed replies.
const (
	Persona   = "You are TaskHive, a helpful and friendly assistant for managing tasks. Be concise. Today's date is "
	Greeting  = "Hello! I'm your personal assistant. How can I help you manage your tasks today? You can ask things like 'What are my overdue tasks?' or 'Create a task to finish the report by tomorrow with high priority'."
	Apology   = "Sorry, something went wrong on my end. Please try again."
	Fallback  = "I'm not sure how to help with that."
	Exhausted = "I couldn't complete that request in a reasonable number of steps. Please try breaking it into smaller requests."
)

// Defaults.
const (
	DefaultMaxRounds   = 8
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxSessions = 1000
)

var errRoundsExhausted = errors.New("chat: tool rounds exhausted")

// ToolObserver is told about every tool call routed by the loop.
// outcome is "ok", "error" or "unknown".
type ToolObserver interface {
	ObserveTool(name, outcome string)
}

type session struct {
	mu      sync.Mutex
	history []llm.Message
}

// Agent is the conversational agent. It is safe for concurrent use.
type Agent struct {
	model     llm.Client
	tools     map[string]Tool
	defs      []llm.ToolDefinition
	maxRounds int
	ttl       time.Duration
	size      int
	now       func() time.Time
	logger    *slog.Logger
	observer  ToolObserver

	mu       sync.Mutex
	sessions *expirable.LRU[string, *session]
}

// Option configures an Agent.
type Option func(*Agent)

// WithMaxRounds bounds model calls per prompt.
func WithMaxRounds(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxRounds = n
		}
	}
}

// WithSessionTTL sets how long an idle session is kept.
func WithSessionTTL(d time.Duration) Option {
	return func(a *Agent) {
		if d > 0 {
			a.ttl = d
		}
	}
}

// WithMaxSessions bounds the number of live sessions.
func WithMaxSessions(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.size = n
		}
	}
}

// WithClock overrides the time source for the persona date.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithToolObserver registers a tool call observer.
func WithToolObserver(o ToolObserver) Option {
	return func(a *Agent) { a.observer = o }
}

// New creates a chat agent over repo.
func New(model llm.Client, repo Repository, opts ...Option) *Agent {
	a := &Agent{
		model:     model,
		tools:     map[string]Tool{},
		maxRounds: DefaultMaxRounds,
		ttl:       DefaultSessionTTL,
		size:      DefaultMaxSessions,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}
	for _, t := range tools(repo) {
		def := t.Definition()
		a.tools[def.Name] = t
		a.defs = append(a.defs, def)
	}
	a.sessions = expirable.NewLRU[string, *session](a.size, nil, a.ttl)
	return a
}

// Send processes one user prompt in the (owner, sessionID) conversation and
// returns the reply text. It never fails: errors become the Apology reply and
// the session is left as it was before the prompt.
func (a *Agent) Send(ctx context.Context, owner, sessionID, prompt string) string {
	s := a.session(owner, sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint := len(s.history)
	s.history = append(s.history, llm.UserMessage(prompt))

	reply, err := a.run(ctx, owner, s)
	if err != nil {
		s.history = s.history[:checkpoint]
		if errors.Is(err, errRoundsExhausted) {
			a.logger.Warn("chat: tool rounds exhausted",
				slog.String("owner", owner), slog.Int("max_rounds", a.maxRounds))
			return Exhausted
		}
		a.logger.Error("chat: model call failed",
			slog.String("owner", owner), slog.String("error", err.Error()))
		return Apology
	}
	return reply
}

// Sessions reports the number of live sessions.
func (a *Agent) Sessions() int {
	return a.sessions.Len()
}

func (a *Agent) run(ctx context.Context, owner string, s *session) (string, error) {
	for range a.maxRounds {
		resp, err := a.model.Complete(ctx, llm.CompletionRequest{Messages: s.history, Tools: a.defs})
		if err != nil {
			return "", err
		}
		s.history = append(s.history, resp.Message())

		if len(resp.ToolCalls) == 0 {
			if strings.TrimSpace(resp.Content) == "" {
				return Fallback, nil
			}
			return resp.Content, nil
		}

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, a.dispatch(ctx, owner, call))
		}
		s.history = append(s.history, llm.ToolMessage(results...))
	}
	return "", errRoundsExhausted
}

// dispatch runs one tool call. Unknown tools and handler failures become
// error results so that every call id gets an answer.
func (a *Agent) dispatch(ctx context.Context, owner string, call llm.ToolCall) llm.ToolResult {
	res := llm.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := a.tools[call.Name]
	if !ok {
		a.observe(call.Name, "unknown")
		a.logger.Warn("chat: unknown tool", slog.String("tool", call.Name))
		res.Content = fmt.Sprintf("unknown tool %q", call.Name)
		res.IsError = true
		return res
	}

	out, err := tool.Run(ctx, owner, call)
	if err != nil {
		a.observe(call.Name, "error")
		a.logger.Warn("chat: tool failed", slog.String("tool", call.Name), slog.String("error", err.Error()))
		res.Content = err.Error()
		res.IsError = true
		return res
	}
	a.observe(call.Name, "ok")
	res.Content = encodeResult(out)
	return res
}

func (a *Agent) observe(name, outcome string) {
	if a.observer != nil {
		a.observer.ObserveTool(name, outcome)
	}
}

// session returns the live session for the key, creating it with the
// greeting pair when absent. Every access refreshes the idle timer.
func (a *Agent) session(owner, sessionID string) *session {
	key := owner + "\x00" + sessionID

	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions.Get(key)
	if !ok {
		s = &session{history: a.greeting()}
	}
	a.sessions.Add(key, s)
	return s
}

func (a *Agent) greeting() []llm.Message {
	return []llm.Message{
		llm.UserMessage(Persona + a.now().Format("1/2/2006")),
		llm.ModelMessage(Greeting),
	}
}
