package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analyses, versions and step results.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	GetDetailByID(ctx context.Context, analysisID string) (Detail, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
	Rename(ctx context.Context, analysisID, filename string) error
	Delete(ctx context.Context, analysisID string) error

	// TransitionStatus moves the analysis to the given status only when its
	// current status is one of from. It reports whether a row was updated.
	// An empty from list allows the transition from any status.
	TransitionStatus(ctx context.Context, analysisID string, to Status, errMsg string, from ...Status) (bool, error)
	UpdateProgress(ctx context.Context, analysisID string, progress int) error
	SetTranscriptionJob(ctx context.Context, analysisID, jobURL, normalizedKey string) error
	SetTranscript(ctx context.Context, analysisID, transcriptKey, snippet string) error
	SetResult(ctx context.Context, analysisID, resultKey, snippet string) error

	CreateVersion(ctx context.Context, version Version) error
	CreateStepResults(ctx context.Context, steps []StepResult) error
	GetStepByID(ctx context.Context, stepID string) (StepDetail, error)
	ListStepsByVersion(ctx context.Context, versionID string) ([]StepResult, error)
	UpdateStepStatus(ctx context.Context, stepID string, status StepStatus) error
	UpdateStepResult(ctx context.Context, stepID string, status StepStatus, content string) error
	SetVersionResult(ctx context.Context, versionID, resultKey string) error

	ListByStatus(ctx context.Context, status Status) ([]Analysis, error)
	// MarkStaleTranscriptions fails transcriptions not updated since cutoff and
	// returns the IDs it reclaimed.
	MarkStaleTranscriptions(ctx context.Context, cutoff time.Time) ([]string, error)
}
