package analyses

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `
id, user_id, filename, status, error_message, progress,
source_key, normalized_key, transcript_key, result_key, transcription_job_url,
prompt_flow_id, transcript_snippet, result_snippet, created_at, updated_at`

func scanAnalysis(row interface{ Scan(...any) error }) (Analysis, error) {
	var a Analysis
	var errMsg sql.NullString
	var normalizedKey sql.NullString
	var transcriptKey sql.NullString
	var resultKey sql.NullString
	var jobURL sql.NullString
	var flowID sql.NullString
	var transcriptSnippet sql.NullString
	var resultSnippet sql.NullString
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Filename,
		&a.Status,
		&errMsg,
		&a.Progress,
		&a.SourceKey,
		&normalizedKey,
		&transcriptKey,
		&resultKey,
		&jobURL,
		&flowID,
		&transcriptSnippet,
		&resultSnippet,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	a.ErrorMessage = errMsg.String
	a.NormalizedKey = normalizedKey.String
	a.TranscriptKey = transcriptKey.String
	a.ResultKey = resultKey.String
	a.TranscriptionJobURL = jobURL.String
	a.PromptFlowID = flowID.String
	a.TranscriptSnippet = transcriptSnippet.String
	a.ResultSnippet = resultSnippet.String
	return a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, user_id, filename, status, error_message, progress,
	source_key, normalized_key, transcript_key, result_key, transcription_job_url,
	prompt_flow_id, transcript_snippet, result_snippet, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.UserID,
		analysis.Filename,
		analysis.Status,
		nullable(analysis.ErrorMessage),
		analysis.Progress,
		analysis.SourceKey,
		nullable(analysis.NormalizedKey),
		nullable(analysis.TranscriptKey),
		nullable(analysis.ResultKey),
		nullable(analysis.TranscriptionJobURL),
		nullable(analysis.PromptFlowID),
		nullable(analysis.TranscriptSnippet),
		nullable(analysis.ResultSnippet),
		analysis.CreatedAt,
		analysis.UpdatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1 LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

// GetDetailByID returns an analysis with its versions and step results.
func (r *PGRepo) GetDetailByID(ctx context.Context, analysisID string) (Detail, error) {
	analysis, err := r.GetByID(ctx, analysisID)
	if err != nil {
		return Detail{}, err
	}

	const versionQuery = `
SELECT id, analysis_id, flow_name, result_key, created_at
FROM analysis_versions
WHERE analysis_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, versionQuery, analysisID)
	if err != nil {
		return Detail{}, err
	}
	defer rows.Close()

	detail := Detail{Analysis: analysis}
	for rows.Next() {
		var v Version
		var resultKey sql.NullString
		if err := rows.Scan(&v.ID, &v.AnalysisID, &v.FlowName, &resultKey, &v.CreatedAt); err != nil {
			return Detail{}, err
		}
		v.ResultKey = resultKey.String
		detail.Versions = append(detail.Versions, VersionDetail{Version: v})
	}
	if err := rows.Err(); err != nil {
		return Detail{}, err
	}

	for i := range detail.Versions {
		steps, err := r.ListStepsByVersion(ctx, detail.Versions[i].Version.ID)
		if err != nil {
			return Detail{}, err
		}
		detail.Versions[i].Steps = steps
	}
	return detail, nil
}

// ListByUser returns analyses for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + analysisColumns + `
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Rename updates the display filename.
func (r *PGRepo) Rename(ctx context.Context, analysisID, filename string) error {
	const query = `UPDATE analyses SET filename = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, filename)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes an analysis; versions and step results cascade.
func (r *PGRepo) Delete(ctx context.Context, analysisID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, analysisID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// TransitionStatus performs a gated status update. The row is only touched
// when its current status is one of from, which keeps concurrent workers from
// clobbering each other's transitions.
func (r *PGRepo) TransitionStatus(ctx context.Context, analysisID string, to Status, errMsg string, from ...Status) (bool, error) {
	var res sql.Result
	var err error
	if len(from) == 0 {
		const query = `
UPDATE analyses
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1`
		res, err = r.DB.ExecContext(ctx, query, analysisID, to, nullable(errMsg))
	} else {
		const query = `
UPDATE analyses
SET status = $2, error_message = $3, updated_at = NOW()
WHERE id = $1 AND status = ANY($4)`
		res, err = r.DB.ExecContext(ctx, query, analysisID, to, nullable(errMsg), statusArray(from))
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func statusArray(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// UpdateProgress sets the coarse progress percentage.
func (r *PGRepo) UpdateProgress(ctx context.Context, analysisID string, progress int) error {
	const query = `UPDATE analyses SET progress = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.DB.ExecContext(ctx, query, analysisID, progress)
	return err
}

// SetTranscriptionJob records the provider job handle and the normalized audio key.
func (r *PGRepo) SetTranscriptionJob(ctx context.Context, analysisID, jobURL, normalizedKey string) error {
	const query = `
UPDATE analyses
SET transcription_job_url = $2, normalized_key = $3, updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, nullable(jobURL), nullable(normalizedKey))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetTranscript records the stored transcript and its snippet.
func (r *PGRepo) SetTranscript(ctx context.Context, analysisID, transcriptKey, snippet string) error {
	const query = `
UPDATE analyses
SET transcript_key = $2, transcript_snippet = $3, updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, transcriptKey, nullable(snippet))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetResult records the final report object and its snippet.
func (r *PGRepo) SetResult(ctx context.Context, analysisID, resultKey, snippet string) error {
	const query = `
UPDATE analyses
SET result_key = $2, result_snippet = $3, updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, analysisID, resultKey, nullable(snippet))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CreateVersion inserts a pipeline run.
func (r *PGRepo) CreateVersion(ctx context.Context, version Version) error {
	const query = `
INSERT INTO analysis_versions (id, analysis_id, flow_name, result_key, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.DB.ExecContext(ctx, query,
		version.ID,
		version.AnalysisID,
		version.FlowName,
		nullable(version.ResultKey),
		version.CreatedAt,
	)
	return err
}

// CreateStepResults inserts the step rows for a version in one transaction.
func (r *PGRepo) CreateStepResults(ctx context.Context, steps []StepResult) error {
	if len(steps) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const query = `
INSERT INTO analysis_step_results (id, version_id, step_name, step_order, status, prompt_template, content, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, query,
			s.ID, s.VersionID, s.StepName, s.StepOrder, s.Status, s.PromptTemplate, nullable(s.Content), s.UpdatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetStepByID returns a step joined with its version and analysis.
func (r *PGRepo) GetStepByID(ctx context.Context, stepID string) (StepDetail, error) {
	const query = `
SELECT s.id, s.version_id, s.step_name, s.step_order, s.status, s.prompt_template, s.content, s.updated_at,
       v.id, v.analysis_id, v.flow_name, v.result_key, v.created_at,
       a.id, a.user_id, a.filename, a.status, a.transcript_key
FROM analysis_step_results s
JOIN analysis_versions v ON v.id = s.version_id
JOIN analyses a ON a.id = v.analysis_id
WHERE s.id = $1
LIMIT 1`
	var d StepDetail
	var content sql.NullString
	var versionResultKey sql.NullString
	var transcriptKey sql.NullString
	err := r.DB.QueryRowContext(ctx, query, stepID).Scan(
		&d.Step.ID,
		&d.Step.VersionID,
		&d.Step.StepName,
		&d.Step.StepOrder,
		&d.Step.Status,
		&d.Step.PromptTemplate,
		&content,
		&d.Step.UpdatedAt,
		&d.Version.ID,
		&d.Version.AnalysisID,
		&d.Version.FlowName,
		&versionResultKey,
		&d.Version.CreatedAt,
		&d.Analysis.ID,
		&d.Analysis.UserID,
		&d.Analysis.Filename,
		&d.Analysis.Status,
		&transcriptKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StepDetail{}, ErrNotFound
		}
		return StepDetail{}, err
	}
	d.Step.Content = content.String
	d.Version.ResultKey = versionResultKey.String
	d.Analysis.TranscriptKey = transcriptKey.String
	return d, nil
}

// ListStepsByVersion returns the steps of a version in execution order.
func (r *PGRepo) ListStepsByVersion(ctx context.Context, versionID string) ([]StepResult, error) {
	const query = `
SELECT id, version_id, step_name, step_order, status, prompt_template, content, updated_at
FROM analysis_step_results
WHERE version_id = $1
ORDER BY step_order ASC`
	rows, err := r.DB.QueryContext(ctx, query, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepResult
	for rows.Next() {
		var s StepResult
		var content sql.NullString
		if err := rows.Scan(&s.ID, &s.VersionID, &s.StepName, &s.StepOrder, &s.Status, &s.PromptTemplate, &content, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Content = content.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateStepStatus sets a step's status.
func (r *PGRepo) UpdateStepStatus(ctx context.Context, stepID string, status StepStatus) error {
	const query = `UPDATE analysis_step_results SET status = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, stepID, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStepResult sets a step's status and output in one write.
func (r *PGRepo) UpdateStepResult(ctx context.Context, stepID string, status StepStatus, content string) error {
	const query = `
UPDATE analysis_step_results
SET status = $2, content = $3, updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, stepID, status, nullable(content))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetVersionResult records the assembled report object for a version.
func (r *PGRepo) SetVersionResult(ctx context.Context, versionID, resultKey string) error {
	const query = `UPDATE analysis_versions SET result_key = $2 WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, versionID, resultKey)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListByStatus returns analyses currently in the given status.
func (r *PGRepo) ListByStatus(ctx context.Context, status Status) ([]Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE status = $1 ORDER BY created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkStaleTranscriptions fails transcriptions whose last update is older than
// cutoff. RETURNING makes the sweep claim each row exactly once even with
// multiple sweepers running.
func (r *PGRepo) MarkStaleTranscriptions(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `
UPDATE analyses
SET status = $1, error_message = $2, updated_at = NOW()
WHERE status = $3 AND updated_at < $4
RETURNING id`
	rows, err := r.DB.QueryContext(ctx, query,
		StatusTranscriptionFailed,
		"transcription timed out",
		StatusTranscriptionInProgress,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
