// Package transcription drives recordings through the external speech
// provider: submit, poll until settled, then store the transcript.
package transcription

import (
	"context"
	"fmt"
	"time"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/audio"
	"github.com/drewano/VocalAlchemy/internal/shared/metrics"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
	"github.com/drewano/VocalAlchemy/internal/speech"
)

// Outcome is the result of one poll cycle.
type Outcome int

const (
	// OutcomeRunning means the provider job is still in flight; poll again.
	OutcomeRunning Outcome = iota
	// OutcomeSucceeded means the transcript is stored and analysis can start.
	OutcomeSucceeded
	// OutcomeFailed means the job settled as TRANSCRIPTION_FAILED.
	OutcomeFailed
	// OutcomeSettled means the analysis was no longer awaiting transcription,
	// typically a stale queue message; nothing was done.
	OutcomeSettled
)

const presignTTL = 6 * time.Hour

// Orchestrator coordinates audio normalization and the provider job
// lifecycle.
type Orchestrator struct {
	Repo       analyses.Repo
	Store      object.ObjectStore
	Provider   speech.Provider
	Normalizer audio.Normalizer
}

// Submit normalizes the recording and starts the provider job. Claiming the
// PENDING status first makes duplicate start messages harmless. Processing
// failures settle the job as TRANSCRIPTION_FAILED rather than erroring, so
// the queue does not redeliver a deterministic failure.
func (o *Orchestrator) Submit(ctx context.Context, analysisID string) error {
	analysis, err := o.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return err
	}

	claimed, err := o.Repo.TransitionStatus(ctx, analysisID, analyses.StatusTranscriptionInProgress, "",
		analyses.StatusPending)
	if err != nil {
		return err
	}
	if !claimed {
		telemetry.Warn("transcription.already_claimed", map[string]any{
			"analysis_id": analysisID,
			"status":      string(analysis.Status),
		})
		return nil
	}

	src, err := o.Store.Open(ctx, analysis.SourceKey)
	if err != nil {
		return o.fail(ctx, analysisID, fmt.Sprintf("open recording: %v", err))
	}
	defer src.Close()

	normalized, contentType, err := o.Normalizer.Normalize(ctx, src)
	if err != nil {
		return o.fail(ctx, analysisID, fmt.Sprintf("normalize audio: %v", err))
	}
	defer normalized.Close()

	normalizedKey := analysisID + "/normalized.flac"
	if _, err := o.Store.SaveWithKey(ctx, normalizedKey, contentType, normalized); err != nil {
		return o.fail(ctx, analysisID, fmt.Sprintf("store normalized audio: %v", err))
	}

	audioURL, err := o.Store.PresignURL(ctx, normalizedKey, presignTTL)
	if err != nil {
		return o.fail(ctx, analysisID, fmt.Sprintf("presign audio: %v", err))
	}

	jobURL, err := o.Provider.Submit(ctx, audioURL, analysis.Filename)
	if err != nil {
		return o.fail(ctx, analysisID, fmt.Sprintf("submit transcription: %v", err))
	}

	if err := o.Repo.SetTranscriptionJob(ctx, analysisID, jobURL, normalizedKey); err != nil {
		return err
	}
	if err := o.Repo.UpdateProgress(ctx, analysisID, analyses.ProgressTranscribing); err != nil {
		return err
	}
	metrics.IncTranscriptionSubmitted()

	telemetry.Info("transcription.submitted", map[string]any{
		"analysis_id": analysisID,
		"job_url":     jobURL,
	})
	return nil
}

// PollAndFinalize checks the provider job once. Provider transport errors are
// returned so the caller can retry; settled states are persisted here.
func (o *Orchestrator) PollAndFinalize(ctx context.Context, analysisID string) (Outcome, error) {
	analysis, err := o.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return OutcomeSettled, err
	}
	if analysis.Status != analyses.StatusTranscriptionInProgress {
		return OutcomeSettled, nil
	}
	if analysis.TranscriptionJobURL == "" {
		if err := o.fail(ctx, analysisID, "no transcription job recorded"); err != nil {
			return OutcomeSettled, err
		}
		return OutcomeFailed, nil
	}

	status, err := o.Provider.Status(ctx, analysis.TranscriptionJobURL)
	if err != nil {
		return OutcomeRunning, err
	}

	switch status.State {
	case speech.StateRunning:
		return OutcomeRunning, nil
	case speech.StateFailed:
		if err := o.fail(ctx, analysisID, status.Error); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeFailed, nil
	case speech.StateSucceeded:
		if err := o.finalize(ctx, analysis); err != nil {
			return OutcomeSucceeded, err
		}
		return OutcomeSucceeded, nil
	default:
		return OutcomeRunning, nil
	}
}

func (o *Orchestrator) finalize(ctx context.Context, analysis analyses.Analysis) error {
	transcript, err := o.Provider.FetchResult(ctx, analysis.TranscriptionJobURL)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}

	key := analysis.ID + "/transcript.txt"
	if err := object.PutText(ctx, o.Store, key, transcript); err != nil {
		return fmt.Errorf("store transcript: %w", err)
	}
	if err := o.Repo.SetTranscript(ctx, analysis.ID, key, analyses.Snippet(transcript)); err != nil {
		return err
	}
	if err := o.Repo.UpdateProgress(ctx, analysis.ID, analyses.ProgressTranscriptReady); err != nil {
		return err
	}
	if _, err := o.Repo.TransitionStatus(ctx, analysis.ID, analyses.StatusAnalysisPending, "",
		analyses.StatusTranscriptionInProgress); err != nil {
		return err
	}
	metrics.IncTranscriptionCompleted()

	telemetry.Info("transcription.completed", map[string]any{
		"analysis_id": analysis.ID,
		"chars":       len(transcript),
	})
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, analysisID, message string) error {
	metrics.IncTranscriptionFailed()
	if _, err := o.Repo.TransitionStatus(ctx, analysisID, analyses.StatusTranscriptionFailed, message,
		analyses.StatusTranscriptionInProgress); err != nil {
		return err
	}
	telemetry.Error("transcription.failed", map[string]any{
		"analysis_id": analysisID,
		"error":       message,
	})
	return nil
}
