package transcription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/audio"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object/local"
	"github.com/drewano/VocalAlchemy/internal/speech"
)

// fakeProvider scripts a sequence of status results per poll.
type fakeProvider struct {
	submitted []string
	statuses  []speech.StatusResult
	statusErr error
	polls     int
	result    string
	resultErr error
}

func (p *fakeProvider) Submit(ctx context.Context, audioURL, displayName string) (string, error) {
	p.submitted = append(p.submitted, audioURL)
	return "https://provider.test/jobs/job-1", nil
}

func (p *fakeProvider) Status(ctx context.Context, jobURL string) (speech.StatusResult, error) {
	if p.statusErr != nil {
		return speech.StatusResult{}, p.statusErr
	}
	i := p.polls
	if i >= len(p.statuses) {
		i = len(p.statuses) - 1
	}
	p.polls++
	return p.statuses[i], nil
}

func (p *fakeProvider) FetchResult(ctx context.Context, jobURL string) (string, error) {
	if p.resultErr != nil {
		return "", p.resultErr
	}
	return p.result, nil
}

func newOrchestrator(t *testing.T, provider *fakeProvider) (*Orchestrator, *analyses.MemoryRepo) {
	t.Helper()
	repo := analyses.NewMemoryRepo()
	return &Orchestrator{
		Repo:       repo,
		Store:      local.New(t.TempDir()),
		Provider:   provider,
		Normalizer: audio.Passthrough{},
	}, repo
}

func seed(t *testing.T, o *Orchestrator, repo *analyses.MemoryRepo, status analyses.Status) analyses.Analysis {
	t.Helper()
	now := time.Now().UTC()
	a := analyses.Analysis{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Filename:  "standup.mp3",
		Status:    status,
		SourceKey: "u1/standup.mp3",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := object.PutText(context.Background(), o.Store, a.SourceKey, "raw-audio-bytes"); err != nil {
		t.Fatalf("store source: %v", err)
	}
	return a
}

func TestSubmitStartsProviderJob(t *testing.T) {
	provider := &fakeProvider{}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusPending)

	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusTranscriptionInProgress {
		t.Fatalf("status = %s, want TRANSCRIPTION_IN_PROGRESS", got.Status)
	}
	if got.TranscriptionJobURL == "" || got.NormalizedKey == "" {
		t.Fatalf("job handle not persisted: %+v", got)
	}
	if got.Progress != analyses.ProgressTranscribing {
		t.Fatalf("progress = %d, want %d", got.Progress, analyses.ProgressTranscribing)
	}
	if len(provider.submitted) != 1 {
		t.Fatalf("provider submits = %d, want 1", len(provider.submitted))
	}
}

func TestSubmitIsIdempotentOnDuplicateMessage(t *testing.T) {
	provider := &fakeProvider{}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusPending)

	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	// Redelivered message: the status claim fails, nothing is resubmitted.
	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if len(provider.submitted) != 1 {
		t.Fatalf("provider submits = %d, want 1", len(provider.submitted))
	}
}

func TestPollRunningThenSucceeded(t *testing.T) {
	provider := &fakeProvider{
		statuses: []speech.StatusResult{
			{State: speech.StateRunning},
			{State: speech.StateSucceeded},
		},
		result: "bonjour tout le monde",
	}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusPending)
	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome, err := o.PollAndFinalize(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if outcome != OutcomeRunning {
		t.Fatalf("outcome = %v, want OutcomeRunning", outcome)
	}

	outcome, err = o.PollAndFinalize(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if outcome != OutcomeSucceeded {
		t.Fatalf("outcome = %v, want OutcomeSucceeded", outcome)
	}

	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusAnalysisPending {
		t.Fatalf("status = %s, want ANALYSIS_PENDING", got.Status)
	}
	if got.Progress != analyses.ProgressTranscriptReady {
		t.Fatalf("progress = %d, want %d", got.Progress, analyses.ProgressTranscriptReady)
	}

	text, err := object.GetText(context.Background(), o.Store, got.TranscriptKey)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if text != "bonjour tout le monde" {
		t.Fatalf("transcript = %q", text)
	}
	if got.TranscriptSnippet != "bonjour tout le monde" {
		t.Fatalf("snippet = %q", got.TranscriptSnippet)
	}
}

func TestPollFailureSettlesWithProviderDetail(t *testing.T) {
	provider := &fakeProvider{
		statuses: []speech.StatusResult{{State: speech.StateFailed, Error: "audio too short"}},
	}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusPending)
	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome, err := o.PollAndFinalize(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %v, want OutcomeFailed", outcome)
	}

	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusTranscriptionFailed {
		t.Fatalf("status = %s, want TRANSCRIPTION_FAILED", got.Status)
	}
	if got.ErrorMessage != "audio too short" {
		t.Fatalf("error = %q", got.ErrorMessage)
	}
}

func TestPollTransportErrorIsRetryable(t *testing.T) {
	provider := &fakeProvider{statusErr: errors.New("connection refused")}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusPending)
	if err := o.Submit(context.Background(), a.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outcome, err := o.PollAndFinalize(context.Background(), a.ID)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if outcome != OutcomeRunning {
		t.Fatalf("outcome = %v, want OutcomeRunning", outcome)
	}

	// The job must still be claimable by the next poll.
	got, _ := repo.GetByID(context.Background(), a.ID)
	if got.Status != analyses.StatusTranscriptionInProgress {
		t.Fatalf("status = %s, want TRANSCRIPTION_IN_PROGRESS", got.Status)
	}
}

func TestPollStaleMessageIsNoop(t *testing.T) {
	provider := &fakeProvider{}
	o, repo := newOrchestrator(t, provider)
	a := seed(t, o, repo, analyses.StatusCompleted)

	outcome, err := o.PollAndFinalize(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if outcome != OutcomeSettled {
		t.Fatalf("outcome = %v, want OutcomeSettled", outcome)
	}
	if provider.polls != 0 {
		t.Fatalf("provider polled %d times, want 0", provider.polls)
	}
}
