package llm

import (
	"context"
	"errors"
)

// Client abstracts LLM providers for report generation. Complete runs one
// prompt instruction against the given content and returns the model's text.
type Client interface {
	Complete(ctx context.Context, instruction, content string) (string, error)
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, instruction, content string) (string, error) {
	_ = ctx
	_ = instruction
	_ = content
	return "", ErrNotImplemented
}
