// Package chat defines the text-completion provider interface used by the
// HTTP chat endpoint. Unlike the live voice path, chat is a one-shot
// request/response exchange: a user message in, the assistant's full reply
// out.
package chat

import "context"

// Request is a single chat completion request.
type Request struct {
	// SystemPrompt primes the model with persona and command instructions.
	SystemPrompt string
	// Message is the user's input text.
	Message string
	// Temperature overrides the model default when non-zero.
	Temperature float64
	// MaxTokens limits the reply length when positive.
	MaxTokens int
}

// Response carries the assistant's full reply.
type Response struct {
	// Text is the raw model output, possibly containing an embedded
	// command block that callers are expected to extract and strip.
	Text string
	// Usage reports token consumption for the exchange.
	Usage Usage
}

// Usage holds token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider generates chat completions.
type Provider interface {
	// Complete performs a one-shot completion. Implementations must respect
	// ctx cancellation.
	Complete(ctx context.Context, req Request) (*Response, error)
}
