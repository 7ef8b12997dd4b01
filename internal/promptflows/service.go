package promptflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service applies validation and ownership rules on top of the repository.
type Service struct {
	Repo Repo
}

// StepInput is the caller-supplied definition of one step.
type StepInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Create validates and stores a new flow for the user.
func (s *Service) Create(ctx context.Context, userID, name, description string, steps []StepInput) (Flow, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Flow{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	normalized, err := normalizeSteps(steps)
	if err != nil {
		return Flow{}, err
	}

	flow := Flow{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	for i, in := range normalized {
		flow.Steps = append(flow.Steps, Step{
			ID:        uuid.NewString(),
			FlowID:    flow.ID,
			Name:      in.Name,
			Content:   in.Content,
			StepOrder: i,
		})
	}
	if err := s.Repo.Create(ctx, flow); err != nil {
		return Flow{}, err
	}
	return flow, nil
}

// Get returns a flow the user owns.
func (s *Service) Get(ctx context.Context, userID, flowID string) (Flow, error) {
	flow, err := s.Repo.GetByID(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}
	if flow.UserID != userID {
		return Flow{}, ErrNotFound
	}
	return flow, nil
}

// List returns the user's flows.
func (s *Service) List(ctx context.Context, userID string) ([]Flow, error) {
	return s.Repo.ListByUser(ctx, userID)
}

// Update replaces a flow's name, description and steps.
func (s *Service) Update(ctx context.Context, userID, flowID, name, description string, steps []StepInput) (Flow, error) {
	existing, err := s.Get(ctx, userID, flowID)
	if err != nil {
		return Flow{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Flow{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	normalized, err := normalizeSteps(steps)
	if err != nil {
		return Flow{}, err
	}

	updated := Flow{
		ID:          existing.ID,
		UserID:      existing.UserID,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   existing.CreatedAt,
	}
	for i, in := range normalized {
		updated.Steps = append(updated.Steps, Step{
			ID:        uuid.NewString(),
			FlowID:    existing.ID,
			Name:      in.Name,
			Content:   in.Content,
			StepOrder: i,
		})
	}
	if err := s.Repo.Update(ctx, updated); err != nil {
		return Flow{}, err
	}
	return updated, nil
}

// Delete removes a flow the user owns.
func (s *Service) Delete(ctx context.Context, userID, flowID string) error {
	if _, err := s.Get(ctx, userID, flowID); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, flowID)
}

// normalizeSteps trims inputs and rejects blank or duplicate step names. Step
// names become render placeholders, so duplicates would be ambiguous.
func normalizeSteps(steps []StepInput) ([]StepInput, error) {
	seen := map[string]struct{}{}
	out := make([]StepInput, 0, len(steps))
	for i, in := range steps {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: step %d has no name", ErrInvalidInput, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate step name %q", ErrInvalidInput, name)
		}
		seen[name] = struct{}{}
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return nil, fmt.Errorf("%w: step %q has no content", ErrInvalidInput, name)
		}
		out = append(out, StepInput{Name: name, Content: content})
	}
	return out, nil
}
