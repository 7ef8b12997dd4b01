package analyses

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// statusSliceConverter lets []string status lists flow through the mock the
// way the pgx stdlib driver accepts them in production.
type statusSliceConverter struct{}

func (statusSliceConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return fmt.Sprint(s), nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(statusSliceConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGRepoTransitionStatusGated(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE analyses").
		WithArgs("a1", StatusAnalysisInProgress, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStatus(context.Background(), "a1", StatusAnalysisInProgress, "", StatusAnalysisPending)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoTransitionStatusLoses(t *testing.T) {
	repo, mock := newMockRepo(t)

	// Another worker already moved the row out of the expected status.
	mock.ExpectExec("UPDATE analyses").
		WithArgs("a1", StatusAnalysisInProgress, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TransitionStatus(context.Background(), "a1", StatusAnalysisInProgress, "", StatusAnalysisPending)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok {
		t.Fatal("expected transition to be rejected")
	}
}

func TestPGRepoTransitionStatusUnconditional(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE analyses").
		WithArgs("a1", StatusTranscriptionFailed, "normalize failed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.TransitionStatus(context.Background(), "a1", StatusTranscriptionFailed, "normalize failed")
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected transition to apply")
	}
}

func TestPGRepoMarkStaleTranscriptions(t *testing.T) {
	repo, mock := newMockRepo(t)

	cutoff := time.Now().Add(-2 * time.Hour)
	rows := sqlmock.NewRows([]string{"id"}).AddRow("a1").AddRow("a2")
	mock.ExpectQuery("UPDATE analyses").
		WithArgs(StatusTranscriptionFailed, "transcription timed out", StatusTranscriptionInProgress, cutoff).
		WillReturnRows(rows)

	ids, err := repo.MarkStaleTranscriptions(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("MarkStaleTranscriptions: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a1" || ids[1] != "a2" {
		t.Fatalf("ids = %v, want [a1 a2]", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateStepResultsTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	steps := []StepResult{
		{ID: "s1", VersionID: "v1", StepName: "Summary", StepOrder: 0, Status: StepPending, PromptTemplate: "p1", UpdatedAt: now},
		{ID: "s2", VersionID: "v1", StepName: "Actions", StepOrder: 1, Status: StepPending, PromptTemplate: "p2", UpdatedAt: now},
	}

	mock.ExpectBegin()
	for _, s := range steps {
		mock.ExpectExec("INSERT INTO analysis_step_results").
			WithArgs(s.ID, s.VersionID, s.StepName, s.StepOrder, s.Status, s.PromptTemplate, nil, s.UpdatedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.CreateStepResults(context.Background(), steps); err != nil {
		t.Fatalf("CreateStepResults: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoRenameMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE analyses").
		WithArgs("missing", "new name").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Rename(context.Background(), "missing", "new name"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
