package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by Scripted when no replies remain.
var ErrScriptExhausted = errors.New("llm: scripted replies exhausted")

// Reply is one scripted model turn: a response or an error.
type Reply struct {
	Response *CompletionResponse
	Err      error
}

// Text scripts a text-only reply.
func Text(s string) Reply { return Reply{Response: &CompletionResponse{Content: s}} }

// Calls scripts a reply requesting the given tool calls.
func Calls(calls ...ToolCall) Reply { return Reply{Response: &CompletionResponse{ToolCalls: calls}} }

// Fail scripts a transport failure.
func Fail(err error) Reply { return Reply{Err: err} }

// Scripted is a Client that replays canned replies in order and records
// every request it receives. It is safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	requests []CompletionRequest
}

// NewScripted creates a scripted client.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

// Push appends more replies.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	s.replies = append(s.replies, replies...)
	s.mu.Unlock()
}

// Complete implements Client.
func (s *Scripted) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := req
	snapshot.Messages = append([]Message(nil), req.Messages...)
	s.requests = append(s.requests, snapshot)

	if len(s.replies) == 0 {
		return nil, ErrScriptExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Response, r.Err
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.requests...)
}
