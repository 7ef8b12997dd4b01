// Package promptflows manages the editable prompt flows that drive report
// generation: ordered lists of named prompt steps owned by a user.
package promptflows

import "time"

// Flow is an ordered sequence of prompt steps.
type Flow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Steps       []Step    `json:"steps"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Step is one prompt template within a flow. Content may reference earlier
// step outputs and the transcript with {name} placeholders.
type Step struct {
	ID        string `json:"id"`
	FlowID    string `json:"flowId"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	StepOrder int    `json:"stepOrder"`
}
