// Package pipeline runs prompt flows over transcripts: it materializes a
// version with snapshotted step templates, executes steps one at a time and
// assembles the final report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drewano/VocalAlchemy/internal/analyses"
	"github.com/drewano/VocalAlchemy/internal/llm"
	"github.com/drewano/VocalAlchemy/internal/promptflows"
	"github.com/drewano/VocalAlchemy/internal/shared/metrics"
	"github.com/drewano/VocalAlchemy/internal/shared/storage/object"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

// Engine executes prompt pipeline runs.
type Engine struct {
	Repo  analyses.Repo
	Flows promptflows.Repo
	Store object.ObjectStore
	LLM   llm.Client
}

// SetupRun claims the job for analysis and creates a version with the flow's
// steps copied in as templates, returning the first step to execute. Copying
// the templates pins the run to the flow as it existed now; later edits to
// the flow do not change a run in flight. A zero-step flow finalizes
// immediately and returns an empty step ID.
func (e *Engine) SetupRun(ctx context.Context, analysisID string) (string, error) {
	claimed, err := e.Repo.TransitionStatus(ctx, analysisID, analyses.StatusAnalysisInProgress, "",
		analyses.StatusAnalysisPending)
	if err != nil {
		return "", err
	}
	if !claimed {
		// A redelivered setup message; the run is already underway.
		telemetry.Warn("pipeline.setup_already_claimed", map[string]any{
			"analysis_id": analysisID,
		})
		return "", nil
	}

	analysis, err := e.Repo.GetByID(ctx, analysisID)
	if err != nil {
		return "", err
	}
	if analysis.TranscriptKey == "" {
		return "", e.failRun(ctx, analysisID, analyses.ErrNoTranscript.Error())
	}
	if analysis.PromptFlowID == "" {
		return "", e.failRun(ctx, analysisID, analyses.ErrNoFlowConfigured.Error())
	}
	flow, err := e.Flows.GetByID(ctx, analysis.PromptFlowID)
	if err != nil {
		if errors.Is(err, promptflows.ErrNotFound) {
			return "", e.failRun(ctx, analysisID, analyses.ErrNoFlowConfigured.Error())
		}
		return "", err
	}

	now := time.Now().UTC()
	version := analyses.Version{
		ID:         uuid.NewString(),
		AnalysisID: analysisID,
		FlowName:   flow.Name,
		CreatedAt:  now,
	}
	if err := e.Repo.CreateVersion(ctx, version); err != nil {
		return "", err
	}

	steps := make([]analyses.StepResult, 0, len(flow.Steps))
	for _, s := range flow.Steps {
		steps = append(steps, analyses.StepResult{
			ID:             uuid.NewString(),
			VersionID:      version.ID,
			StepName:       s.Name,
			StepOrder:      s.StepOrder,
			Status:         analyses.StepPending,
			PromptTemplate: s.Content,
			UpdatedAt:      now,
		})
	}
	if err := e.Repo.CreateStepResults(ctx, steps); err != nil {
		return "", err
	}

	telemetry.Info("pipeline.run_created", map[string]any{
		"analysis_id": analysisID,
		"version_id":  version.ID,
		"flow_name":   flow.Name,
		"steps":       len(steps),
	})

	if len(steps) == 0 {
		return "", e.finalize(ctx, analysisID, version.ID, nil)
	}
	return steps[0].ID, nil
}

// ExecuteStep runs one step and records its outcome. It returns the version
// ID so the caller can advance the run. A failed model call marks the step
// FAILED without returning an error; the failure is settled when the run
// advances.
func (e *Engine) ExecuteStep(ctx context.Context, stepID, promptOverride string) (string, error) {
	detail, err := e.Repo.GetStepByID(ctx, stepID)
	if err != nil {
		return "", err
	}
	analysisID := detail.Analysis.ID

	if err := e.Repo.UpdateStepStatus(ctx, stepID, analyses.StepInProgress); err != nil {
		return "", err
	}

	transcript, err := object.GetText(ctx, e.Store, detail.Analysis.TranscriptKey)
	if err != nil {
		return "", fmt.Errorf("load transcript: %w", err)
	}
	runContext, err := e.buildContext(ctx, detail, transcript)
	if err != nil {
		return "", err
	}

	template := detail.Step.PromptTemplate
	if strings.TrimSpace(promptOverride) != "" {
		template = promptOverride
	}
	instruction := Render(template, runContext)

	client := llm.WithRetry(e.LLM, analysisID, analyses.RequestIDFromContext(ctx))
	started := time.Now()
	output, llmErr := client.Complete(ctx, instruction, transcript)
	metrics.ObserveStepDurationMs(float64(time.Since(started).Milliseconds()))

	if llmErr != nil {
		telemetry.Error("pipeline.step_failed", map[string]any{
			"analysis_id": analysisID,
			"step_id":     stepID,
			"step_name":   detail.Step.StepName,
			"error":       llmErr.Error(),
		})
		metrics.IncStepFailed()
		// The provider error becomes the failed step's content so the run's
		// failure message can carry it.
		if err := e.Repo.UpdateStepResult(ctx, stepID, analyses.StepFailed, "Step failed: "+llmErr.Error()); err != nil {
			return "", err
		}
		return detail.Version.ID, nil
	}

	if err := e.Repo.UpdateStepResult(ctx, stepID, analyses.StepCompleted, output); err != nil {
		return "", err
	}
	metrics.IncStepCompleted()

	if err := e.updateProgress(ctx, analysisID, detail.Version.ID); err != nil {
		return "", err
	}

	telemetry.Info("pipeline.step_completed", map[string]any{
		"analysis_id": analysisID,
		"step_id":     stepID,
		"step_name":   detail.Step.StepName,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return detail.Version.ID, nil
}

// AdvanceOrFinalize settles the run after a step: it fails the run if any
// step failed, returns the next pending step, or assembles the report when
// every step completed.
func (e *Engine) AdvanceOrFinalize(ctx context.Context, versionID string) (string, error) {
	steps, err := e.Repo.ListStepsByVersion(ctx, versionID)
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return "", fmt.Errorf("version %s has no steps", versionID)
	}
	analysisID, err := e.analysisForVersion(ctx, steps[0].ID)
	if err != nil {
		return "", err
	}

	for _, s := range steps {
		if s.Status == analyses.StepFailed {
			return "", e.failRun(ctx, analysisID, stepFailureMessage(s))
		}
	}
	for _, s := range steps {
		if s.Status == analyses.StepPending {
			return s.ID, nil
		}
		if s.Status == analyses.StepInProgress {
			// Interrupted mid-step, most likely a worker crash. Run it again.
			return s.ID, nil
		}
	}
	return "", e.finalize(ctx, analysisID, versionID, steps)
}

// SettleRun settles a run after an isolated step execution without advancing
// it: a failed step fails the run, a fully completed version is assembled
// into the report, and a version whose remaining steps never ran stays
// failed since nothing will execute them.
func (e *Engine) SettleRun(ctx context.Context, versionID string) error {
	steps, err := e.Repo.ListStepsByVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("version %s has no steps", versionID)
	}
	analysisID, err := e.analysisForVersion(ctx, steps[0].ID)
	if err != nil {
		return err
	}

	for _, s := range steps {
		if s.Status == analyses.StepFailed {
			return e.failRun(ctx, analysisID, stepFailureMessage(s))
		}
	}
	for _, s := range steps {
		if s.Status != analyses.StepCompleted {
			return e.failRun(ctx, analysisID, fmt.Sprintf("step %q has not run", s.StepName))
		}
	}
	return e.finalize(ctx, analysisID, versionID, steps)
}

func stepFailureMessage(s analyses.StepResult) string {
	if s.Content != "" {
		return fmt.Sprintf("step %q: %s", s.StepName, s.Content)
	}
	return fmt.Sprintf("step %q failed", s.StepName)
}

func (e *Engine) analysisForVersion(ctx context.Context, stepID string) (string, error) {
	detail, err := e.Repo.GetStepByID(ctx, stepID)
	if err != nil {
		return "", err
	}
	return detail.Analysis.ID, nil
}

// buildContext exposes the transcript, run identifiers and previously
// completed step outputs as placeholder values.
func (e *Engine) buildContext(ctx context.Context, detail analyses.StepDetail, transcript string) (map[string]string, error) {
	runContext := map[string]string{
		"transcript":  transcript,
		"analysis_id": detail.Analysis.ID,
		"flow_name":   detail.Version.FlowName,
	}
	steps, err := e.Repo.ListStepsByVersion(ctx, detail.Version.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range steps {
		if s.Status == analyses.StepCompleted && s.StepOrder != detail.Step.StepOrder {
			runContext[s.StepName] = s.Content
		}
	}
	return runContext, nil
}

func (e *Engine) updateProgress(ctx context.Context, analysisID, versionID string) error {
	steps, err := e.Repo.ListStepsByVersion(ctx, versionID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	completed := 0
	for _, s := range steps {
		if s.Status == analyses.StepCompleted {
			completed++
		}
	}
	progress := analyses.ProgressTranscriptReady +
		(analyses.ProgressComplete-analyses.ProgressTranscriptReady)*completed/len(steps)
	return e.Repo.UpdateProgress(ctx, analysisID, progress)
}

// finalize assembles the report from step outputs, stores it and completes
// the run.
func (e *Engine) finalize(ctx context.Context, analysisID, versionID string, steps []analyses.StepResult) error {
	var report strings.Builder
	for i, s := range steps {
		if i > 0 {
			report.WriteString("\n\n")
		}
		report.WriteString("## ")
		report.WriteString(s.StepName)
		report.WriteString("\n\n")
		report.WriteString(s.Content)
	}

	key := fmt.Sprintf("%s/versions/%s/report.md", analysisID, versionID)
	if err := object.PutText(ctx, e.Store, key, report.String()); err != nil {
		metrics.IncRunFailed()
		return e.failRun(ctx, analysisID, fmt.Sprintf("store report: %v", err))
	}
	if err := e.Repo.SetVersionResult(ctx, versionID, key); err != nil {
		return err
	}
	if err := e.Repo.SetResult(ctx, analysisID, key, analyses.Snippet(report.String())); err != nil {
		return err
	}
	if err := e.Repo.UpdateProgress(ctx, analysisID, analyses.ProgressComplete); err != nil {
		return err
	}
	if _, err := e.Repo.TransitionStatus(ctx, analysisID, analyses.StatusCompleted, ""); err != nil {
		return err
	}
	metrics.IncRunCompleted()

	telemetry.Info("pipeline.run_completed", map[string]any{
		"analysis_id": analysisID,
		"version_id":  versionID,
		"result_key":  key,
	})
	return nil
}

func (e *Engine) failRun(ctx context.Context, analysisID, message string) error {
	metrics.IncRunFailed()
	if _, err := e.Repo.TransitionStatus(ctx, analysisID, analyses.StatusAnalysisFailed, message); err != nil {
		return err
	}
	telemetry.Error("pipeline.run_failed", map[string]any{
		"analysis_id": analysisID,
		"error":       message,
	})
	return nil
}
