package queue

import "encoding/json"

// Task names understood by the worker.
const (
	TaskStartTranscription = "start_transcription"
	TaskCheckTranscription = "check_transcription"
	TaskSetupPipeline      = "setup_pipeline"
	TaskExecuteStep        = "execute_step"
	TaskRerunStep          = "rerun_step"
	TaskDeleteAnalysis     = "delete_analysis"
)

// Message is the payload sent to downstream queue consumers.
type Message struct {
	Task       string `json:"task"`
	AnalysisID string `json:"analysisId"`
	StepID     string `json:"stepId,omitempty"`
	// PromptOverride replaces the step's stored template for a single rerun.
	PromptOverride string `json:"promptOverride,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
