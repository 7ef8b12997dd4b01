package queue

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		Task:       TaskExecuteStep,
		AnalysisID: "analysis-123",
		StepID:     "step-456",
		RequestID:  "request-789",
		EnqueuedAt: "2026-08-30T22:00:00Z",
		Version:    1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsBadJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMemoryClientDelayedDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []Message
	done := make(chan struct{}, 2)

	c := NewMemoryClient(func(ctx context.Context, msg Message) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
		done <- struct{}{}
	})
	defer c.Close()

	if err := c.SendDelayed(context.Background(), Message{Task: TaskCheckTranscription}, 20*time.Millisecond); err != nil {
		t.Fatalf("send delayed: %v", err)
	}
	if err := c.Send(context.Background(), Message{Task: TaskSetupPipeline}); err != nil {
		t.Fatalf("send: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("dispatched %d messages, want 2", len(got))
	}
}
