package promptflows

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo for development and tests.
type MemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]Flow
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{flows: map[string]Flow{}}
}

func (r *MemoryRepo) Create(ctx context.Context, flow Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[flow.ID] = cloneFlow(flow)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, flowID string) (Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[flowID]
	if !ok {
		return Flow{}, ErrNotFound
	}
	return cloneFlow(f), nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string) ([]Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Flow
	for _, f := range r.flows {
		if f.UserID == userID {
			out = append(out, cloneFlow(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, flow Flow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.flows[flow.ID]
	if !ok {
		return ErrNotFound
	}
	flow.UserID = existing.UserID
	flow.CreatedAt = existing.CreatedAt
	r.flows[flow.ID] = cloneFlow(flow)
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flows[flowID]; !ok {
		return ErrNotFound
	}
	delete(r.flows, flowID)
	return nil
}

func cloneFlow(f Flow) Flow {
	steps := make([]Step, len(f.Steps))
	copy(steps, f.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })
	f.Steps = steps
	return f
}
