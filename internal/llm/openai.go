package llm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/taskhive/taskhive/internal/apperr"
)

// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// Config configures an OpenAI-compatible client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient speaks the chat completions API of any OpenAI-compatible provider.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// Compile-time check.
var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client bound to model.
func NewOpenAIClient(model string, cfg Config) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model}
}

// Model returns the model name requests are sent to.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toParams(req),
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		}))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, apperr.Upstream("llm: chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return &CompletionResponse{}, nil
	}

	msg := completion.Choices[0].Message
	resp := &CompletionResponse{Content: msg.Content, Raw: msg.ToParam()}
	// Arguments stay verbatim: a malformed payload must fail in Decode, not
	// pass as an empty object.
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

func toParams(req CompletionRequest) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleModel:
			if raw, ok := m.Raw.(openai.ChatCompletionMessageParamUnion); ok {
				out = append(out, raw)
				continue
			}
			out = append(out, openai.AssistantMessage(m.Content))
		case RoleTool:
			for _, r := range m.ToolResults {
				content := r.Content
				if r.IsError {
					content = "error: " + content
				}
				out = append(out, openai.ToolMessage(content, r.CallID))
			}
		}
	}
	return out
}
