package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryClient dispatches messages to a handler in-process. Delayed sends use
// a timer, which is close enough to queue semantics for development and tests.
type MemoryClient struct {
	mu      sync.Mutex
	handler func(ctx context.Context, msg Message)
	timers  []*time.Timer
	closed  bool
}

// NewMemoryClient constructs a client that invokes handler for each message.
func NewMemoryClient(handler func(ctx context.Context, msg Message)) *MemoryClient {
	return &MemoryClient{handler: handler}
}

// SetHandler replaces the dispatch target. Useful when the handler needs the
// client itself to enqueue continuations.
func (c *MemoryClient) SetHandler(handler func(ctx context.Context, msg Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Send dispatches the message on a fresh goroutine.
func (c *MemoryClient) Send(ctx context.Context, msg Message) error {
	return c.SendDelayed(ctx, msg, 0)
}

// SendDelayed dispatches the message after the given delay.
func (c *MemoryClient) SendDelayed(ctx context.Context, msg Message, delay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	dispatch := func() {
		c.mu.Lock()
		handler := c.handler
		closed := c.closed
		c.mu.Unlock()
		if handler != nil && !closed {
			handler(context.Background(), msg)
		}
	}
	if delay <= 0 {
		go dispatch()
		return nil
	}
	c.timers = append(c.timers, time.AfterFunc(delay, dispatch))
	return nil
}

// Close stops pending deliveries.
func (c *MemoryClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
}

var _ Client = (*MemoryClient)(nil)
