package workerproc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/audio"
	"github.com/drewano/VocalAlchemy/internal/pipeline"
	"github.com/drewano/VocalAlchemy/internal/promptflows"
	"github.com/drewano/VocalAlchemy/internal/queue"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object/local"
	"github.com/drewano/VocalAlchemy/internal/speech"
	"github.com/drewano/VocalAlchemy/internal/transcription"
)

type recordingQueue struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	msg   queue.Message
	delay time.Duration
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	return q.SendDelayed(ctx, msg, 0)
}

func (q *recordingQueue) SendDelayed(ctx context.Context, msg queue.Message, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, sentMessage{msg: msg, delay: delay})
	return nil
}

func (q *recordingQueue) take(t *testing.T) sentMessage {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.sent) == 0 {
		t.Fatal("no message enqueued")
	}
	head := q.sent[0]
	q.sent = q.sent[1:]
	return head
}

func (q *recordingQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sent) == 0
}

// stubProvider succeeds immediately with a fixed transcript.
type stubProvider struct{}

func (stubProvider) Submit(ctx context.Context, audioURL, displayName string) (string, error) {
	return "https://provider.test/jobs/1", nil
}

func (stubProvider) Status(ctx context.Context, jobURL string) (speech.StatusResult, error) {
	return speech.StatusResult{State: speech.StateSucceeded}, nil
}

func (stubProvider) FetchResult(ctx context.Context, jobURL string) (string, error) {
	return "the transcript", nil
}

type echoLLM struct{}

func (echoLLM) Complete(ctx context.Context, instruction, content string) (string, error) {
	return "done: " + instruction, nil
}

// flakyLLM fails instructions containing failOn until it is cleared.
type flakyLLM struct {
	mu     sync.Mutex
	failOn string
}

func (l *flakyLLM) Complete(ctx context.Context, instruction, content string) (string, error) {
	l.mu.Lock()
	failOn := l.failOn
	l.mu.Unlock()
	if failOn != "" && strings.Contains(instruction, failOn) {
		return "", errors.New("openai http status 503")
	}
	return "done: " + instruction, nil
}

func (l *flakyLLM) clear() {
	l.mu.Lock()
	l.failOn = ""
	l.mu.Unlock()
}

func newProcessor(t *testing.T) (*Processor, *recordingQueue, *analyses.MemoryRepo, string) {
	t.Helper()
	repo := analyses.NewMemoryRepo()
	flows := promptflows.NewMemoryRepo()
	store := local.New(t.TempDir())
	q := &recordingQueue{}

	flowID := uuid.NewString()
	if err := flows.Create(context.Background(), promptflows.Flow{
		ID:        flowID,
		UserID:    "u1",
		Name:      "Meeting report",
		CreatedAt: time.Now().UTC(),
		Steps: []promptflows.Step{
			{ID: uuid.NewString(), FlowID: flowID, Name: "Summary", Content: "Summarize {transcript}", StepOrder: 0},
			{ID: uuid.NewString(), FlowID: flowID, Name: "Actions", Content: "Actions from {Summary}", StepOrder: 1},
		},
	}); err != nil {
		t.Fatalf("create flow: %v", err)
	}

	p := &Processor{
		Repo:  repo,
		Store: store,
		Queue: q,
		Orchestrator: &transcription.Orchestrator{
			Repo:       repo,
			Store:      store,
			Provider:   stubProvider{},
			Normalizer: audio.Passthrough{},
		},
		Engine: &pipeline.Engine{
			Repo:  repo,
			Flows: flows,
			Store: store,
			LLM:   echoLLM{},
		},
		PollInterval: 30 * time.Second,
	}
	return p, q, repo, flowID
}

func seedPending(t *testing.T, p *Processor, repo *analyses.MemoryRepo, flowID string) analyses.Analysis {
	t.Helper()
	now := time.Now().UTC()
	a := analyses.Analysis{
		ID:           uuid.NewString(),
		UserID:       "u1",
		Filename:     "standup.mp3",
		Status:       analyses.StatusPending,
		SourceKey:    "u1/standup.mp3",
		PromptFlowID: flowID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := object.PutText(context.Background(), p.Store, a.SourceKey, "raw-audio"); err != nil {
		t.Fatalf("store source: %v", err)
	}
	return a
}

func body(t *testing.T, msg queue.Message) string {
	t.Helper()
	payload, err := queue.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(payload)
}

// TestContinuationChain follows one job through every task in the chain the
// way the queue would deliver them.
func TestContinuationChain(t *testing.T) {
	p, q, repo, flowID := newProcessor(t)
	a := seedPending(t, p, repo, flowID)

	err := p.HandleMessage(context.Background(), body(t, queue.Message{
		Task:       queue.TaskStartTranscription,
		AnalysisID: a.ID,
	}))
	if err != nil {
		t.Fatalf("start_transcription: %v", err)
	}

	next := q.take(t)
	if next.msg.Task != queue.TaskCheckTranscription || next.delay != 30*time.Second {
		t.Fatalf("expected delayed check_transcription, got %+v", next)
	}

	if err := p.HandleMessage(context.Background(), body(t, next.msg)); err != nil {
		t.Fatalf("check_transcription: %v", err)
	}
	next = q.take(t)
	if next.msg.Task != queue.TaskSetupPipeline {
		t.Fatalf("expected setup_pipeline, got %+v", next)
	}

	if err := p.HandleMessage(context.Background(), body(t, next.msg)); err != nil {
		t.Fatalf("setup_pipeline: %v", err)
	}
	next = q.take(t)
	if next.msg.Task != queue.TaskExecuteStep || next.msg.StepID == "" {
		t.Fatalf("expected execute_step, got %+v", next)
	}

	if err := p.HandleMessage(context.Background(), body(t, next.msg)); err != nil {
		t.Fatalf("execute_step 1: %v", err)
	}
	next = q.take(t)
	if next.msg.Task != queue.TaskExecuteStep {
		t.Fatalf("expected second execute_step, got %+v", next)
	}

	if err := p.HandleMessage(context.Background(), body(t, next.msg)); err != nil {
		t.Fatalf("execute_step 2: %v", err)
	}
	if !q.empty() {
		t.Fatalf("chain should end after the last step")
	}

	got, err := repo.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != analyses.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.Progress != analyses.ProgressComplete {
		t.Fatalf("progress = %d, want 100", got.Progress)
	}
}

// TestRerunStepRunsInIsolation: rerunning the failed step of a partially-run
// version must not resume the pipeline by enqueueing the steps after it.
func TestRerunStepRunsInIsolation(t *testing.T) {
	p, q, repo, flowID := newProcessor(t)
	llm := &flakyLLM{failOn: "Summarize"}
	p.Engine.LLM = llm
	a := seedPending(t, p, repo, flowID)

	// Drive the chain until the first step fails and the run settles.
	msg := queue.Message{Task: queue.TaskStartTranscription, AnalysisID: a.ID}
	for {
		if err := p.HandleMessage(context.Background(), body(t, msg)); err != nil {
			t.Fatalf("%s: %v", msg.Task, err)
		}
		if q.empty() {
			break
		}
		msg = q.take(t).msg
	}
	got, err := repo.GetByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != analyses.StatusAnalysisFailed {
		t.Fatalf("status = %s, want ANALYSIS_FAILED", got.Status)
	}

	detail, err := repo.GetDetailByID(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetDetailByID: %v", err)
	}
	steps := detail.Versions[0].Steps
	if steps[0].Status != analyses.StepFailed || steps[1].Status != analyses.StepPending {
		t.Fatalf("unexpected step statuses: %s, %s", steps[0].Status, steps[1].Status)
	}

	// The API gates the rerun claim before enqueueing.
	llm.clear()
	if _, err := repo.TransitionStatus(context.Background(), a.ID, analyses.StatusAnalysisInProgress, "",
		analyses.StatusCompleted, analyses.StatusAnalysisFailed); err != nil {
		t.Fatalf("claim rerun: %v", err)
	}
	err = p.HandleMessage(context.Background(), body(t, queue.Message{
		Task:       queue.TaskRerunStep,
		AnalysisID: a.ID,
		StepID:     steps[0].ID,
	}))
	if err != nil {
		t.Fatalf("rerun_step: %v", err)
	}

	if !q.empty() {
		t.Fatalf("rerun resumed the pipeline: %+v", q.take(t))
	}
	steps, err = repo.ListStepsByVersion(context.Background(), detail.Versions[0].Version.ID)
	if err != nil {
		t.Fatalf("ListStepsByVersion: %v", err)
	}
	if steps[0].Status != analyses.StepCompleted {
		t.Fatalf("rerun step status = %s, want COMPLETED", steps[0].Status)
	}
	if steps[1].Status != analyses.StepPending {
		t.Fatalf("later step was executed: %s", steps[1].Status)
	}

	// The run settles without the unexecuted step, so it stays failed.
	got, _ = repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusAnalysisFailed {
		t.Fatalf("status = %s, want ANALYSIS_FAILED", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "has not run") {
		t.Fatalf("error = %q, want it to name the unexecuted step", got.ErrorMessage)
	}
}

func TestDeleteAnalysisRemovesRowAndIsIdempotent(t *testing.T) {
	p, _, repo, flowID := newProcessor(t)
	a := seedPending(t, p, repo, flowID)

	msg := body(t, queue.Message{Task: queue.TaskDeleteAnalysis, AnalysisID: a.ID})
	if err := p.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), a.ID); err != analyses.ErrNotFound {
		t.Fatalf("expected row gone, got %v", err)
	}

	// Redelivery of the same message must succeed.
	if err := p.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivered delete: %v", err)
	}
}

func TestReconcileReenqueuesInFlightPolls(t *testing.T) {
	p, q, repo, flowID := newProcessor(t)
	a := seedPending(t, p, repo, flowID)
	if _, err := repo.TransitionStatus(context.Background(), a.ID, analyses.StatusTranscriptionInProgress, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	if err := p.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	sent := q.take(t)
	if sent.msg.Task != queue.TaskCheckTranscription || sent.msg.AnalysisID != a.ID {
		t.Fatalf("unexpected message %+v", sent)
	}
}

func TestSweepStaleFailsOldJobs(t *testing.T) {
	p, _, repo, flowID := newProcessor(t)
	a := seedPending(t, p, repo, flowID)
	if _, err := repo.TransitionStatus(context.Background(), a.ID, analyses.StatusTranscriptionInProgress, ""); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// Fresh jobs are untouched.
	if err := p.SweepStale(context.Background(), 2*time.Hour); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusTranscriptionInProgress {
		t.Fatalf("fresh job swept: %s", got.Status)
	}

	// Jobs older than the horizon are failed.
	if err := p.SweepStale(context.Background(), 0); err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	got, _ = repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusTranscriptionFailed {
		t.Fatalf("status = %s, want TRANSCRIPTION_FAILED", got.Status)
	}
}
