package analyses

import (
	"context"
	"time"

	"github.com/drewano/VocalAlchemy/internal/notify"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

// NotifyingRepo wraps a Repo and publishes a status event after every
// successful transition or progress write. Delivery failures are logged and
// swallowed; notifications are best-effort and must never fail the job.
type NotifyingRepo struct {
	Repo
	Notifier notify.Notifier
}

// NewNotifyingRepo decorates repo with status publication.
func NewNotifyingRepo(repo Repo, notifier notify.Notifier) *NotifyingRepo {
	return &NotifyingRepo{Repo: repo, Notifier: notifier}
}

func (r *NotifyingRepo) TransitionStatus(ctx context.Context, analysisID string, to Status, errMsg string, from ...Status) (bool, error) {
	ok, err := r.Repo.TransitionStatus(ctx, analysisID, to, errMsg, from...)
	if err != nil || !ok {
		return ok, err
	}
	r.publish(ctx, analysisID, to, errMsg)
	return true, nil
}

// MarkStaleTranscriptions publishes a failure event for every reclaimed job,
// so subscribers see sweep-driven transitions like any other.
func (r *NotifyingRepo) MarkStaleTranscriptions(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := r.Repo.MarkStaleTranscriptions(ctx, cutoff)
	if err != nil {
		return ids, err
	}
	for _, id := range ids {
		r.publish(ctx, id, StatusTranscriptionFailed, "transcription timed out")
	}
	return ids, nil
}

func (r *NotifyingRepo) UpdateProgress(ctx context.Context, analysisID string, progress int) error {
	if err := r.Repo.UpdateProgress(ctx, analysisID, progress); err != nil {
		return err
	}
	if r.Notifier == nil {
		return nil
	}
	current, err := r.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil
	}
	event := notify.Event{
		AnalysisID: analysisID,
		Status:     string(current.Status),
		Error:      current.ErrorMessage,
		Progress:   progress,
	}
	if err := r.Notifier.Publish(ctx, event); err != nil {
		telemetry.Warn("notify.publish_failed", map[string]any{
			"analysis_id": analysisID,
			"error":       err.Error(),
		})
	}
	return nil
}

func (r *NotifyingRepo) publish(ctx context.Context, analysisID string, status Status, errMsg string) {
	if r.Notifier == nil {
		return
	}
	progress := 0
	if current, err := r.Repo.GetByID(ctx, analysisID); err == nil {
		progress = current.Progress
	}
	event := notify.Event{
		AnalysisID: analysisID,
		Status:     string(status),
		Error:      errMsg,
		Progress:   progress,
	}
	if err := r.Notifier.Publish(ctx, event); err != nil {
		telemetry.Warn("notify.publish_failed", map[string]any{
			"analysis_id": analysisID,
			"status":      string(status),
			"error":       err.Error(),
		})
	}
}
