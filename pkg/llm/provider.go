package llm

import (
	"context"
)

// Message is one turn of a conversation in provider-neutral form.
// Role is "user", "assistant" or "system".
type Message struct {
	Role    string
	Content string
}

// Options carries the per-call knobs a backend may honour. Backends
// ignore fields they cannot map onto their API.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the provider's configured model
}

type Option func(*Options)

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

// WithMaxTokens caps the length of the generated response.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// LLMProvider is the contract every chat backend implements.
type LLMProvider interface {
	// Chat sends a conversation history and returns the model's reply.
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate wraps a single prompt as a one-message chat.
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}
