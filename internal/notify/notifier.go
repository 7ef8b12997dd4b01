// Package notify publishes analysis status updates to interested clients.
package notify

import "context"

// Event is a single status update for an analysis.
type Event struct {
	AnalysisID string `json:"analysisId"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Progress   int    `json:"progress"`
}

// Notifier fans out status updates. Publish must not block on slow consumers.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns a channel of events for one analysis and a cancel
	// function that releases the subscription.
	Subscribe(ctx context.Context, analysisID string) (<-chan Event, func(), error)
}
