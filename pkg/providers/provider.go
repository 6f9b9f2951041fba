// Package providers implements the language-model collaborator contract.
// The core never talks to an LLM API directly; it hands a provider the
// system instruction, the conversation history, and the user message, and
// gets text back. Failures propagate as generic upstream errors and are
// retried by the queue backend.
package providers

import (
	"context"
	"fmt"

	"github.com/kimy-labs/kimy/pkg/domain"
)

// Message is one turn of conversation history.
type Message struct {
	Role    domain.MessageRole `json:"role"`
	Content string             `json:"content"`
}

// GenerateRequest bundles everything a provider needs for one completion.
type GenerateRequest struct {
	SystemInstruction string
	History           []Message
	UserMessage       string
	MaxTokens         int // 0 = provider default
}

// Provider generates reply text for the bot.
type Provider interface {
	// Generate returns the completion text. An empty string with nil error
	// means the model produced nothing usable.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
	// SupportsTools reports whether the provider can execute tool calls.
	// The proactive processor re-checks this before prompting.
	SupportsTools() bool
	// Name identifies the provider in logs.
	Name() string
}

// New creates a provider by configuration name.
func New(kind, apiKey, model string) (Provider, error) {
	switch kind {
	case "anthropic":
		return NewAnthropicProvider(apiKey, model), nil
	case "openai":
		return NewOpenAIProvider(apiKey, model), nil
	default:
		return nil, fmt.Errorf("providers: unsupported provider %q", kind)
	}
}
