package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drewano/VocalAlchemy/internal/promptflows"
	"github.com/drewano/VocalAlchemy/internal/queue"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

// Progress checkpoints. Step execution interpolates between the last two.
const (
	ProgressCreated         = 0
	ProgressTranscribing    = 10
	ProgressTranscriptReady = 50
	ProgressComplete        = 100
)

var allowedAudioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".ogg": {}, ".flac": {}, ".aac": {}, ".webm": {}, ".mp4": {},
}

// Service coordinates uploads and job control for analyses.
type Service struct {
	Repo  Repo
	Flows promptflows.Repo
	Store object.ObjectStore
	Queue queue.Client
}

// Upload stores the recording, creates the job row and enqueues transcription.
func (s *Service) Upload(ctx context.Context, userID, filename, flowID string, file io.Reader) (Analysis, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Analysis{}, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedAudioExts[ext]; !ok {
		return Analysis{}, fmt.Errorf("%w: unsupported audio format %q", ErrInvalidInput, ext)
	}
	flowID = strings.TrimSpace(flowID)
	if flowID == "" {
		return Analysis{}, fmt.Errorf("%w: promptFlowId is required", ErrInvalidInput)
	}
	if err := s.checkFlow(ctx, userID, flowID); err != nil {
		return Analysis{}, err
	}

	key, size, _, err := s.Store.Save(ctx, userID, filename, file)
	if err != nil {
		return Analysis{}, fmt.Errorf("store recording: %w", err)
	}

	now := time.Now().UTC()
	analysis := Analysis{
		ID:           uuid.NewString(),
		UserID:       userID,
		Filename:     filename,
		Status:       StatusPending,
		Progress:     ProgressCreated,
		SourceKey:    key,
		PromptFlowID: flowID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, analysis); err != nil {
		return Analysis{}, err
	}

	telemetry.Info("analysis.created", map[string]any{
		"analysis_id": analysis.ID,
		"user_id":     userID,
		"size_bytes":  size,
		"request_id":  RequestIDFromContext(ctx),
	})

	if err := s.enqueue(ctx, queue.Message{Task: queue.TaskStartTranscription, AnalysisID: analysis.ID}); err != nil {
		return Analysis{}, err
	}
	return analysis, nil
}

func (s *Service) checkFlow(ctx context.Context, userID, flowID string) error {
	flow, err := s.Flows.GetByID(ctx, flowID)
	if err != nil {
		if errors.Is(err, promptflows.ErrNotFound) {
			return fmt.Errorf("%w: prompt flow %s", ErrNotFound, flowID)
		}
		return err
	}
	if flow.UserID != userID {
		return fmt.Errorf("%w: prompt flow %s", ErrNotFound, flowID)
	}
	return nil
}

// Get returns an analysis owned by the user.
func (s *Service) Get(ctx context.Context, userID, analysisID string) (Analysis, error) {
	analysis, err := s.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.UserID != userID {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

// GetDetail returns an analysis with its versions and steps.
func (s *Service) GetDetail(ctx context.Context, userID, analysisID string) (Detail, error) {
	if _, err := s.Get(ctx, userID, analysisID); err != nil {
		return Detail{}, err
	}
	return s.Repo.GetDetailByID(ctx, analysisID)
}

// List returns the user's analyses, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// Rename updates the display filename.
func (s *Service) Rename(ctx context.Context, userID, analysisID, filename string) (Analysis, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return Analysis{}, fmt.Errorf("%w: filename is required", ErrInvalidInput)
	}
	if _, err := s.Get(ctx, userID, analysisID); err != nil {
		return Analysis{}, err
	}
	if err := s.Repo.Rename(ctx, analysisID, filename); err != nil {
		return Analysis{}, err
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// Delete enqueues asynchronous removal of the analysis and its stored objects.
func (s *Service) Delete(ctx context.Context, userID, analysisID string) error {
	if _, err := s.Get(ctx, userID, analysisID); err != nil {
		return err
	}
	return s.enqueue(ctx, queue.Message{Task: queue.TaskDeleteAnalysis, AnalysisID: analysisID})
}

// Retranscribe restarts the whole job from the original recording. Only
// settled jobs can be restarted; in-flight ones report a conflict.
func (s *Service) Retranscribe(ctx context.Context, userID, analysisID string) (Analysis, error) {
	if _, err := s.Get(ctx, userID, analysisID); err != nil {
		return Analysis{}, err
	}
	ok, err := s.Repo.TransitionStatus(ctx, analysisID, StatusPending, "",
		StatusPending, StatusCompleted, StatusTranscriptionFailed, StatusAnalysisFailed)
	if err != nil {
		return Analysis{}, err
	}
	if !ok {
		return Analysis{}, fmt.Errorf("%w: analysis is still processing", ErrConflict)
	}
	if err := s.Repo.UpdateProgress(ctx, analysisID, ProgressCreated); err != nil {
		return Analysis{}, err
	}
	if err := s.enqueue(ctx, queue.Message{Task: queue.TaskStartTranscription, AnalysisID: analysisID}); err != nil {
		return Analysis{}, err
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// Relaunch reruns the prompt pipeline over the existing transcript, producing
// a new version. The transcript must already exist.
func (s *Service) Relaunch(ctx context.Context, userID, analysisID string) (Analysis, error) {
	analysis, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return Analysis{}, err
	}
	if analysis.TranscriptKey == "" {
		return Analysis{}, ErrNoTranscript
	}
	ok, err := s.Repo.TransitionStatus(ctx, analysisID, StatusAnalysisPending, "",
		StatusCompleted, StatusAnalysisFailed, StatusTranscriptionFailed)
	if err != nil {
		return Analysis{}, err
	}
	if !ok {
		return Analysis{}, fmt.Errorf("%w: analysis is still processing", ErrConflict)
	}
	if err := s.enqueue(ctx, queue.Message{Task: queue.TaskSetupPipeline, AnalysisID: analysisID}); err != nil {
		return Analysis{}, err
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// RerunStep re-executes one step of an existing version, optionally with a
// one-off prompt override, then reassembles the report.
func (s *Service) RerunStep(ctx context.Context, userID, stepID, promptOverride string) error {
	detail, err := s.Repo.GetStepByID(ctx, stepID)
	if err != nil {
		return err
	}
	if detail.Analysis.UserID != userID {
		return ErrNotFound
	}
	ok, err := s.Repo.TransitionStatus(ctx, detail.Analysis.ID, StatusAnalysisInProgress, "",
		StatusCompleted, StatusAnalysisFailed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: analysis is still processing", ErrConflict)
	}
	return s.enqueue(ctx, queue.Message{
		Task:           queue.TaskRerunStep,
		AnalysisID:     detail.Analysis.ID,
		StepID:         stepID,
		PromptOverride: promptOverride,
	})
}

// Transcript returns the stored transcript text.
func (s *Service) Transcript(ctx context.Context, userID, analysisID string) (string, error) {
	analysis, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.TranscriptKey == "" {
		return "", ErrNoTranscript
	}
	return object.GetText(ctx, s.Store, analysis.TranscriptKey)
}

// Report returns the assembled report for the latest version, or for the
// analysis-level result when no version key is set.
func (s *Service) Report(ctx context.Context, userID, analysisID string) (string, error) {
	analysis, err := s.Get(ctx, userID, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.ResultKey == "" {
		return "", ErrNotFound
	}
	return object.GetText(ctx, s.Store, analysis.ResultKey)
}

func (s *Service) enqueue(ctx context.Context, msg queue.Message) error {
	msg.RequestID = RequestIDFromContext(ctx)
	msg.EnqueuedAt = time.Now().UTC().Format(time.RFC3339)
	msg.Version = 1
	if err := s.Queue.Send(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.Task, err)
	}
	return nil
}
