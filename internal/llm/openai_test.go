package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taskhive/taskhive/internal/apperr"
)

func fakeProvider(t *testing.T, status int, reply string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const toolCallReply = `{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gemini-2.5-flash",
  "choices": [{
    "index": 0, "finish_reason": "tool_calls",
    "message": {
      "role": "assistant", "content": null,
      "tool_calls": [{"id": "call_1", "type": "function",
        "function": {"name": "getTasks", "arguments": "{\"status\":\"overdue\"}"}}]
    }
  }]
}`

func TestOpenAIClient_ToolCall(t *testing.T) {
	var seen map[string]any
	srv := fakeProvider(t, http.StatusOK, toolCallReply, &seen)
	c := NewOpenAIClient("gemini-2.5-flash", Config{BaseURL: srv.URL + "/", APIKey: "test-key"})

	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:   "be brief",
		Messages: []Message{UserMessage("what is overdue?")},
		Tools: []ToolDefinition{{
			Name:        "getTasks",
			Description: "List tasks.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "getTasks" {
		t.Errorf("call = %+v", call)
	}
	var args struct {
		Status string `json:"status"`
	}
	if err := call.Decode(&args); err != nil || args.Status != "overdue" {
		t.Errorf("args = %+v, %v", args, err)
	}

	if seen["model"] != "gemini-2.5-flash" {
		t.Errorf("model = %v", seen["model"])
	}
	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", seen["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message = %v", msgs[0])
	}
	tools, _ := seen["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("tools = %v", seen["tools"])
	}
}

func TestOpenAIClient_ReplaysToolRound(t *testing.T) {
	var seen map[string]any
	srv := fakeProvider(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m",
	  "choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"You have none."}}]}`, &seen)
	c := NewOpenAIClient("m", Config{BaseURL: srv.URL + "/", APIKey: "test-key"})

	resp, err := c.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			UserMessage("what is overdue?"),
			ModelMessage("checking"),
			ToolMessage(ToolResult{CallID: "call_1", Name: "getTasks", Content: "[]"}),
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "You have none." || len(resp.ToolCalls) != 0 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Message().Role != RoleModel {
		t.Errorf("role = %s", resp.Message().Role)
	}

	msgs, _ := seen["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages = %v", seen["messages"])
	}
	last, _ := msgs[2].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", last)
	}
}

func TestOpenAIClient_ErrorIsUpstream(t *testing.T) {
	srv := fakeProvider(t, http.StatusBadRequest, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, nil)
	c := NewOpenAIClient("m", Config{BaseURL: srv.URL + "/", APIKey: "test-key"})

	_, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{UserMessage("hi")}})
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestScripted(t *testing.T) {
	boom := errors.New("boom")
	s := NewScripted(Text("hello"), Fail(boom))
	ctx := context.Background()

	resp, err := s.Complete(ctx, CompletionRequest{Messages: []Message{UserMessage("a")}})
	if err != nil || resp.Content != "hello" {
		t.Errorf("first = %+v, %v", resp, err)
	}
	if _, err := s.Complete(ctx, CompletionRequest{}); !errors.Is(err, boom) {
		t.Errorf("second err = %v", err)
	}
	if _, err := s.Complete(ctx, CompletionRequest{}); !errors.Is(err, ErrScriptExhausted) {
		t.Errorf("third err = %v", err)
	}
	if n := len(s.Requests()); n != 3 {
		t.Errorf("recorded %d requests", n)
	}
}

func TestToolCallDecode_Empty(t *testing.T) {
	var v map[string]any
	if err := (ToolCall{Name: "getSummaries"}).Decode(&v); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v == nil {
		t.Error("expected empty object")
	}
}

func TestOpenAIClient_MalformedArgumentsFailDecode(t *testing.T) {
	reply := strings.Replace(toolCallReply, `{\"status\":\"overdue\"}`, `{\"status\":\"over`, 1)
	srv := fakeProvider(t, http.StatusOK, reply, nil)
	c := NewOpenAIClient("gemini-2.5-flash", Config{BaseURL: srv.URL + "/", APIKey: "test-key"})

	resp, err := c.Complete(context.Background(), CompletionRequest{Messages: []Message{UserMessage("hi")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if got := string(resp.ToolCalls[0].Arguments); got != `{"status":"over` {
		t.Errorf("arguments = %q", got)
	}
	var args map[string]any
	if err := resp.ToolCalls[0].Decode(&args); err == nil {
		t.Error("expected decode error for truncated arguments")
	}
}
