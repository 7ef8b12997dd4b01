// Package speech abstracts asynchronous speech-to-text providers.
package speech

import (
	"context"
	"errors"
)

// JobState classifies a provider job status.
type JobState string

const (
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// StatusResult is the provider's view of a transcription job.
type StatusResult struct {
	State JobState
	// Error carries the provider's failure detail when State is failed.
	Error string
}

// Provider submits long-running transcription jobs and polls them. Submit
// returns an opaque job handle that later calls pass back.
type Provider interface {
	Submit(ctx context.Context, audioURL, displayName string) (string, error)
	Status(ctx context.Context, jobURL string) (StatusResult, error)
	FetchResult(ctx context.Context, jobURL string) (string, error)
}

// ErrNotConfigured is returned by the placeholder provider.
var ErrNotConfigured = errors.New("speech provider not configured")

// PlaceholderProvider is a stub used until a real provider is configured.
type PlaceholderProvider struct{}

func (PlaceholderProvider) Submit(ctx context.Context, audioURL, displayName string) (string, error) {
	return "", ErrNotConfigured
}

func (PlaceholderProvider) Status(ctx context.Context, jobURL string) (StatusResult, error) {
	return StatusResult{}, ErrNotConfigured
}

func (PlaceholderProvider) FetchResult(ctx context.Context, jobURL string) (string, error) {
	return "", ErrNotConfigured
}
