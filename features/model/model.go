// Package model defines a provider-agnostic chat completion contract. It
// abstracts over provider SDKs (Anthropic, OpenAI) so the post-call
// summarizer can invoke a model without coupling to a specific vendor.
// Adapter packages translate these normalized types into provider formats.
package model

import (
	"context"
	"errors"
)

type (
	// Client is the contract consumers use to invoke chat completions.
	// Implementations wrap provider SDKs and translate Request/Response to
	// provider-specific formats. Clients must be safe for concurrent use.
	Client interface {
		// Complete sends a chat completion request to the provider and returns
		// the generated response. Rate-limit rejections are reported as errors
		// matching ErrRateLimited so middlewares can back off.
		Complete(ctx context.Context, req Request) (*Response, error)
	}

	// Middleware wraps a Client with additional behavior (rate limiting,
	// logging). Middlewares compose outermost-first.
	Middleware func(Client) Client

	// Role identifies the author of a chat message.
	Role string

	// Message is one turn of the conversation presented to the model.
	Message struct {
		// Role is the message author: RoleSystem, RoleUser, or RoleAssistant.
		Role Role
		// Content is the message text.
		Content string
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model identifies the target model using the provider-specific
		// identifier. Empty means use the adapter's configured default.
		Model string

		// Messages is the ordered conversation, including system prompts.
		// Adapters decide how system messages map onto the provider API.
		Messages []Message

		// MaxTokens caps the number of completion tokens the model can
		// generate. Zero means use the adapter's configured default.
		MaxTokens int

		// Temperature controls sampling temperature. Zero means use the
		// adapter's configured default.
		Temperature float32
	}

	// Response is the model's completion.
	Response struct {
		// Text is the generated assistant text, with multiple provider text
		// blocks joined by newlines.
		Text string
		// StopReason explains why generation ended, in the provider's own
		// vocabulary (e.g. "end_turn", "max_tokens", "stop").
		StopReason string
		// Usage reports token counts when the provider supplies them.
		Usage TokenUsage
	}

	// TokenUsage records prompt/completion token counts when provided by the
	// model provider. All fields are zero if the provider doesn't report
	// usage.
	TokenUsage struct {
		// InputTokens counts tokens consumed by the prompt and history.
		InputTokens int
		// OutputTokens counts tokens produced by the model.
		OutputTokens int
		// TotalTokens is the aggregate (InputTokens + OutputTokens) unless the
		// provider computes it differently; prefer it when available.
		TotalTokens int
	}
)

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrRateLimited indicates the provider rejected the request because a rate
// limit was exceeded. Adapters wrap the provider error so both this sentinel
// and the underlying error remain matchable.
var ErrRateLimited = errors.New("model: rate limited")
