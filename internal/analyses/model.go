package analyses

import "time"

// Status is the lifecycle state of an analysis job.
type Status string

const (
	StatusPending                 Status = "PENDING"
	StatusTranscriptionInProgress Status = "TRANSCRIPTION_IN_PROGRESS"
	StatusAnalysisPending         Status = "ANALYSIS_PENDING"
	StatusAnalysisInProgress      Status = "ANALYSIS_IN_PROGRESS"
	StatusCompleted               Status = "COMPLETED"
	StatusTranscriptionFailed     Status = "TRANSCRIPTION_FAILED"
	StatusAnalysisFailed          Status = "ANALYSIS_FAILED"
)

// StepStatus is the lifecycle state of a single pipeline step.
type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTranscriptionFailed, StatusAnalysisFailed:
		return true
	}
	return false
}

// Analysis represents one uploaded recording and its processing state.
type Analysis struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	Filename            string    `json:"filename"`
	Status              Status    `json:"status"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
	Progress            int       `json:"progress"`
	SourceKey           string    `json:"-"`
	NormalizedKey       string    `json:"-"`
	TranscriptKey       string    `json:"-"`
	ResultKey           string    `json:"-"`
	TranscriptionJobURL string    `json:"-"`
	PromptFlowID        string    `json:"promptFlowId,omitempty"`
	TranscriptSnippet   string    `json:"transcriptSnippet,omitempty"`
	ResultSnippet       string    `json:"resultSnippet,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Version is one pipeline run over an analysis transcript.
type Version struct {
	ID         string    `json:"id"`
	AnalysisID string    `json:"analysisId"`
	FlowName   string    `json:"flowName"`
	ResultKey  string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// StepResult is the outcome of a single step within a version.
type StepResult struct {
	ID             string     `json:"id"`
	VersionID      string     `json:"versionId"`
	StepName       string     `json:"stepName"`
	StepOrder      int        `json:"stepOrder"`
	Status         StepStatus `json:"status"`
	PromptTemplate string     `json:"-"`
	Content        string     `json:"content,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Detail bundles an analysis with its versions and their step results.
type Detail struct {
	Analysis Analysis        `json:"analysis"`
	Versions []VersionDetail `json:"versions"`
}

// VersionDetail is a version together with its ordered step results.
type VersionDetail struct {
	Version Version      `json:"version"`
	Steps   []StepResult `json:"steps"`
}

// StepDetail is a step result joined with its owning version and analysis.
type StepDetail struct {
	Step     StepResult
	Version  Version
	Analysis Analysis
}
