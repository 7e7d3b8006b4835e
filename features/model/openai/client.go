// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API. It translates requests into ChatCompletion calls
// using github.com/openai/openai-go and maps responses back to the generic
// structures.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"cabline.dev/agent/features/model"
)

type (
	// CompletionsClient captures the subset of the OpenAI SDK client used by
	// the adapter. It is satisfied by *sdk.ChatCompletionService so callers
	// can pass either a real client or a stub in tests.
	CompletionsClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// DefaultModel is the model identifier used when Request.Model is
		// empty. Required.
		DefaultModel string

		// MaxTokens sets the default completion cap when a request does not
		// specify MaxTokens. Zero leaves the cap to the provider default.
		MaxTokens int

		// Temperature is used when a request does not specify Temperature.
		Temperature float64
	}

	// Client implements model.Client via the OpenAI Chat Completions API.
	Client struct {
		chat         CompletionsClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client from the provided completions
// client and configuration options.
func New(chat CompletionsClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
}

var _ model.Client = (*Client)(nil)

// Complete issues a chat completion request and translates the response.
func (c *Client) Complete(ctx context.Context, req model.Request) (*model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	completion, err := c.chat.New(ctx, *params)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	return translateResponse(completion)
}

func (c *Client) prepareRequest(req model.Request) (*sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			messages = append(messages, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(messages) == 0 {
		return nil, errors.New("openai: at least one non-empty message is required")
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: messages,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(maxTokens))
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	return &params, nil
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func isRateLimited(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}

func translateResponse(completion *sdk.ChatCompletion) (*model.Response, error) {
	if completion == nil {
		return nil, errors.New("openai: response is nil")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	choice := completion.Choices[0]
	resp := &model.Response{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	if u := completion.Usage; u.PromptTokens != 0 || u.CompletionTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(u.PromptTokens),
			OutputTokens: int(u.CompletionTokens),
			TotalTokens:  int(u.TotalTokens),
		}
	}
	return resp, nil
}
