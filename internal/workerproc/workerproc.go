// Package workerproc decodes queue messages and dispatches them to the
// transcription orchestrator and the pipeline engine, chaining continuation
// messages so each queue delivery performs one bounded unit of work.
package workerproc

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/drewano/VocalAlchemy/internal/queue"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrUnknownTask indicates a task name this worker does not handle.
type ErrUnknownTask struct {
	Task      string
	RequestID string
}

func (e ErrUnknownTask) Error() string { return "unknown task " + e.Task }

// ErrMissingAnalysisID indicates a message missing the analysis id.
type ErrMissingAnalysisID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingAnalysisID) Error() string { return "missing analysis id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	Task       string
	AnalysisID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process " + e.Task
	}
	return "process " + e.Task + ": " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AnalysisID) == "" {
		return msg, meta, ErrMissingAnalysisID{Meta: meta, RequestID: msg.RequestID}
	}
	switch msg.Task {
	case queue.TaskStartTranscription, queue.TaskCheckTranscription,
		queue.TaskSetupPipeline, queue.TaskExecuteStep,
		queue.TaskRerunStep, queue.TaskDeleteAnalysis:
	default:
		return msg, meta, ErrUnknownTask{Task: msg.Task, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}
