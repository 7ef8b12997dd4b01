package notify

import (
	"context"
	"sync"
)

// MemoryNotifier is an in-process Notifier for development and tests.
type MemoryNotifier struct {
	mu   sync.Mutex
	subs map[string]map[int]chan Event
	next int
}

// NewMemoryNotifier constructs an empty MemoryNotifier.
func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subs: map[string]map[int]chan Event{}}
}

// Publish delivers the event to current subscribers of the analysis.
func (n *MemoryNotifier) Publish(ctx context.Context, event Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[event.AnalysisID] {
		select {
		case ch <- event:
		default:
			// Drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe registers a listener for one analysis.
func (n *MemoryNotifier) Subscribe(ctx context.Context, analysisID string) (<-chan Event, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan Event, 16)
	if n.subs[analysisID] == nil {
		n.subs[analysisID] = map[int]chan Event{}
	}
	n.subs[analysisID][id] = ch

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if sub, ok := n.subs[analysisID][id]; ok {
			delete(n.subs[analysisID], id)
			close(sub)
			if len(n.subs[analysisID]) == 0 {
				delete(n.subs, analysisID)
			}
		}
	}
	return ch, cancel, nil
}
