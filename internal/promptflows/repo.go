package promptflows

import "context"

// Repo defines persistence operations for prompt flows.
type Repo interface {
	Create(ctx context.Context, flow Flow) error
	GetByID(ctx context.Context, flowID string) (Flow, error)
	ListByUser(ctx context.Context, userID string) ([]Flow, error)
	// Update replaces the flow's name, description and full step list.
	Update(ctx context.Context, flow Flow) error
	Delete(ctx context.Context, flowID string) error
}
