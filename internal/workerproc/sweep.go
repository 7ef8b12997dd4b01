package workerproc

import (
	"context"
	"time"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/queue"
	"github.com/drewano/VocalAlchemy/internal/shared/metrics"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

// SweepStale fails transcriptions that have been in flight longer than
// maxAge. It catches jobs whose poll chain was lost, for example when the
// queue dropped a message past its retry ceiling.
func (p *Processor) SweepStale(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)
	ids, err := p.Repo.MarkStaleTranscriptions(ctx, cutoff)
	if err != nil {
		return err
	}
	for range ids {
		metrics.IncStaleJobReclaimed()
	}
	if len(ids) > 0 {
		telemetry.Warn("worker.stale_jobs_reclaimed", map[string]any{
			"count":    len(ids),
			"analyses": ids,
			"max_age":  maxAge.String(),
		})
	}
	return nil
}

// Reconcile re-enqueues a poll for every transcription that is still marked
// in flight. Run at worker startup so jobs survive a restart that lost their
// in-memory poll chain.
func (p *Processor) Reconcile(ctx context.Context) error {
	inFlight, err := p.Repo.ListByStatus(ctx, analyses.StatusTranscriptionInProgress)
	if err != nil {
		return err
	}
	for _, a := range inFlight {
		if err := p.enqueue(ctx, queue.Message{
			Task:       queue.TaskCheckTranscription,
			AnalysisID: a.ID,
		}); err != nil {
			return err
		}
	}
	if len(inFlight) > 0 {
		telemetry.Info("worker.reconciled", map[string]any{"count": len(inFlight)})
	}
	return nil
}
