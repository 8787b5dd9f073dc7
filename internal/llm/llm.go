// Package llm is the provider-neutral model client used by the extraction
// agents and the chat loop: messages and tool schemas in, text or tool calls out.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// Client is a chat-completion model.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is one model turn.
type CompletionRequest struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// CompletionResponse is the model's reply: text, tool calls, or neither.
type CompletionResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Raw is the provider's own form of the reply, used to replay it verbatim.
	Raw any `json:"-"`
}

// Message returns the response as a model-authored history entry.
func (r *CompletionResponse) Message() Message {
	return Message{Role: RoleModel, Content: r.Content, ToolCalls: r.ToolCalls, Raw: r.Raw}
}

// Message is one entry in a conversation.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Raw         any          `json:"-"`
}

// UserMessage builds a user message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// ModelMessage builds a text-only model message.
func ModelMessage(text string) Message { return Message{Role: RoleModel, Content: text} }

// ToolMessage carries the results for one round of tool calls.
func ToolMessage(results ...ToolResult) Message {
	return Message{Role: RoleTool, ToolResults: results}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Decode unmarshals the call arguments into v. Empty arguments decode as {}.
func (c ToolCall) Decode(v any) error {
	if len(c.Arguments) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(c.Arguments, v)
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolDefinition declares a callable function and its JSON schema.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
