package model

import (
	"context"

	"golang.org/x/time/rate"

	"booq/types"
)

// Completer sends one system+user prompt pair to a chat model and returns
// the reply text.
type Completer interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Factory builds a Completer for a model configuration.
type Factory func(types.ModelConfig) Completer

// NewFactory returns a Factory of ChatClients sharing one request limiter.
// rps <= 0 disables pacing.
func NewFactory(rps float64) Factory {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	limiter := rate.NewLimiter(limit, 1)

	return func(cfg types.ModelConfig) Completer {
		return NewChatClient(cfg, limiter)
	}
}
