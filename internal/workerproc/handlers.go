package workerproc

import (
	"context"
	"errors"
	"time"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/pipeline"
	"github.com/drewano/VocalAlchemy/internal/queue"
	"github.com/drewano/VocalAlchemy/internal/shared/metrics"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
	"github.com/drewano/VocalAlchemy/internal/transcription"
)

// Processor routes parsed messages to the domain components and enqueues the
// continuation for multi-step tasks.
type Processor struct {
	Repo         analyses.Repo
	Store        object.ObjectStore
	Queue        queue.Client
	Orchestrator *transcription.Orchestrator
	Engine       *pipeline.Engine
	PollInterval time.Duration
}

// HandleMessage parses, validates, and processes a message payload.
func (p *Processor) HandleMessage(ctx context.Context, body string) error {
	msg, _, err := ParseMessage(body)
	if err != nil {
		return err
	}
	metrics.IncWorkerTaskReceived()

	ctx = analyses.WithRequestID(ctx, msg.RequestID)
	telemetry.Info("worker.task", map[string]any{
		"task":        msg.Task,
		"analysis_id": msg.AnalysisID,
		"request_id":  msg.RequestID,
	})

	if err := p.process(ctx, msg); err != nil {
		metrics.IncWorkerTaskFailed()
		return ErrProcess{Task: msg.Task, AnalysisID: msg.AnalysisID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

func (p *Processor) process(ctx context.Context, msg queue.Message) error {
	switch msg.Task {
	case queue.TaskStartTranscription:
		return p.startTranscription(ctx, msg)
	case queue.TaskCheckTranscription:
		return p.checkTranscription(ctx, msg)
	case queue.TaskSetupPipeline:
		return p.setupPipeline(ctx, msg)
	case queue.TaskExecuteStep:
		return p.executeStep(ctx, msg)
	case queue.TaskRerunStep:
		return p.rerunStep(ctx, msg)
	case queue.TaskDeleteAnalysis:
		return p.deleteAnalysis(ctx, msg)
	default:
		return ErrUnknownTask{Task: msg.Task, RequestID: msg.RequestID}
	}
}

func (p *Processor) startTranscription(ctx context.Context, msg queue.Message) error {
	if err := p.Orchestrator.Submit(ctx, msg.AnalysisID); err != nil {
		return err
	}
	return p.enqueueDelayed(ctx, queue.Message{
		Task:       queue.TaskCheckTranscription,
		AnalysisID: msg.AnalysisID,
	}, p.pollInterval())
}

func (p *Processor) checkTranscription(ctx context.Context, msg queue.Message) error {
	outcome, err := p.Orchestrator.PollAndFinalize(ctx, msg.AnalysisID)
	if err != nil {
		return err
	}
	switch outcome {
	case transcription.OutcomeRunning:
		return p.enqueueDelayed(ctx, queue.Message{
			Task:       queue.TaskCheckTranscription,
			AnalysisID: msg.AnalysisID,
		}, p.pollInterval())
	case transcription.OutcomeSucceeded:
		return p.enqueue(ctx, queue.Message{
			Task:       queue.TaskSetupPipeline,
			AnalysisID: msg.AnalysisID,
		})
	default:
		// Failed or settled elsewhere; the chain ends here.
		return nil
	}
}

func (p *Processor) setupPipeline(ctx context.Context, msg queue.Message) error {
	stepID, err := p.Engine.SetupRun(ctx, msg.AnalysisID)
	if err != nil {
		return err
	}
	if stepID == "" {
		return nil
	}
	return p.enqueue(ctx, queue.Message{
		Task:       queue.TaskExecuteStep,
		AnalysisID: msg.AnalysisID,
		StepID:     stepID,
	})
}

func (p *Processor) executeStep(ctx context.Context, msg queue.Message) error {
	if msg.StepID == "" {
		return errors.New("missing step id")
	}
	versionID, err := p.Engine.ExecuteStep(ctx, msg.StepID, msg.PromptOverride)
	if err != nil {
		return err
	}
	nextStepID, err := p.Engine.AdvanceOrFinalize(ctx, versionID)
	if err != nil {
		return err
	}
	if nextStepID == "" {
		return nil
	}
	return p.enqueue(ctx, queue.Message{
		Task:       queue.TaskExecuteStep,
		AnalysisID: msg.AnalysisID,
		StepID:     nextStepID,
	})
}

// rerunStep re-executes a single step in isolation and settles the run's
// terminal state. It never enqueues a continuation; rerunning one step of a
// partially-run version must not resume the whole pipeline.
func (p *Processor) rerunStep(ctx context.Context, msg queue.Message) error {
	if msg.StepID == "" {
		return errors.New("missing step id")
	}
	versionID, err := p.Engine.ExecuteStep(ctx, msg.StepID, msg.PromptOverride)
	if err != nil {
		return err
	}
	return p.Engine.SettleRun(ctx, versionID)
}

// deleteAnalysis removes stored objects best-effort, then the row. A missing
// row means a redelivered message; that is success.
func (p *Processor) deleteAnalysis(ctx context.Context, msg queue.Message) error {
	analysis, err := p.Repo.GetByID(ctx, msg.AnalysisID)
	if err != nil {
		if errors.Is(err, analyses.ErrNotFound) {
			return nil
		}
		return err
	}

	detail, err := p.Repo.GetDetailByID(ctx, msg.AnalysisID)
	if err != nil {
		return err
	}
	keys := []string{analysis.SourceKey, analysis.NormalizedKey, analysis.TranscriptKey, analysis.ResultKey}
	for _, v := range detail.Versions {
		keys = append(keys, v.Version.ResultKey)
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := p.Store.Delete(ctx, key); err != nil {
			telemetry.Warn("worker.delete_object_failed", map[string]any{
				"analysis_id": msg.AnalysisID,
				"key":         key,
				"error":       err.Error(),
			})
		}
	}

	if err := p.Repo.Delete(ctx, msg.AnalysisID); err != nil && !errors.Is(err, analyses.ErrNotFound) {
		return err
	}
	telemetry.Info("worker.analysis_deleted", map[string]any{"analysis_id": msg.AnalysisID})
	return nil
}

func (p *Processor) pollInterval() time.Duration {
	if p.PollInterval <= 0 {
		return 30 * time.Second
	}
	return p.PollInterval
}

func (p *Processor) enqueue(ctx context.Context, msg queue.Message) error {
	return p.enqueueDelayed(ctx, msg, 0)
}

func (p *Processor) enqueueDelayed(ctx context.Context, msg queue.Message, delay time.Duration) error {
	msg.RequestID = analyses.RequestIDFromContext(ctx)
	msg.EnqueuedAt = time.Now().UTC().Format(time.RFC3339)
	msg.Version = 1
	if delay > 0 {
		return p.Queue.SendDelayed(ctx, msg, delay)
	}
	return p.Queue.Send(ctx, msg)
}
