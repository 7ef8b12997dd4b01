package queue

import (
	"context"
	"time"
)

// Client sends messages to a queue backend.
type Client interface {
	Send(ctx context.Context, msg Message) error
	// SendDelayed delivers the message only after the given delay. Backends
	// round the delay up to their own granularity.
	SendDelayed(ctx context.Context, msg Message, delay time.Duration) error
}
