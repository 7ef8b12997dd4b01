package analyses

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for development and tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	items    map[string]Analysis
	versions map[string]Version
	steps    map[string]StepResult
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		items:    map[string]Analysis{},
		versions: map[string]Version{},
		steps:    map[string]StepResult{},
	}
}

func (r *MemoryRepo) Create(ctx context.Context, analysis Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[analysis.ID]; ok {
		return ErrConflict
	}
	r.items[analysis.ID] = analysis
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) GetDetailByID(ctx context.Context, analysisID string) (Detail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[analysisID]
	if !ok {
		return Detail{}, ErrNotFound
	}
	detail := Detail{Analysis: a}
	var versions []Version
	for _, v := range r.versions {
		if v.AnalysisID == analysisID {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].CreatedAt.After(versions[j].CreatedAt) })
	for _, v := range versions {
		detail.Versions = append(detail.Versions, VersionDetail{
			Version: v,
			Steps:   r.stepsForVersion(v.ID),
		})
	}
	return detail, nil
}

func (r *MemoryRepo) stepsForVersion(versionID string) []StepResult {
	var out []StepResult
	for _, s := range r.steps {
		if s.VersionID == versionID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Analysis
	for _, a := range r.items {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Rename(ctx context.Context, analysisID, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.Filename = filename
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, analysisID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[analysisID]; !ok {
		return ErrNotFound
	}
	delete(r.items, analysisID)
	for id, v := range r.versions {
		if v.AnalysisID == analysisID {
			for sid, s := range r.steps {
				if s.VersionID == id {
					delete(r.steps, sid)
				}
			}
			delete(r.versions, id)
		}
	}
	return nil
}

func (r *MemoryRepo) TransitionStatus(ctx context.Context, analysisID string, to Status, errMsg string, from ...Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return false, nil
	}
	if len(from) > 0 {
		allowed := false
		for _, f := range from {
			if a.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return false, nil
		}
	}
	a.Status = to
	a.ErrorMessage = errMsg
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return true, nil
}

func (r *MemoryRepo) UpdateProgress(ctx context.Context, analysisID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.Progress = progress
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return nil
}

func (r *MemoryRepo) SetTranscriptionJob(ctx context.Context, analysisID, jobURL, normalizedKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.TranscriptionJobURL = jobURL
	a.NormalizedKey = normalizedKey
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return nil
}

func (r *MemoryRepo) SetTranscript(ctx context.Context, analysisID, transcriptKey, snippet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.TranscriptKey = transcriptKey
	a.TranscriptSnippet = snippet
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return nil
}

func (r *MemoryRepo) SetResult(ctx context.Context, analysisID, resultKey, snippet string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[analysisID]
	if !ok {
		return ErrNotFound
	}
	a.ResultKey = resultKey
	a.ResultSnippet = snippet
	a.UpdatedAt = time.Now().UTC()
	r.items[analysisID] = a
	return nil
}

func (r *MemoryRepo) CreateVersion(ctx context.Context, version Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.versions[version.ID]; ok {
		return ErrConflict
	}
	r.versions[version.ID] = version
	return nil
}

func (r *MemoryRepo) CreateStepResults(ctx context.Context, steps []StepResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range steps {
		if _, ok := r.steps[s.ID]; ok {
			return ErrConflict
		}
	}
	for _, s := range steps {
		r.steps[s.ID] = s
	}
	return nil
}

func (r *MemoryRepo) GetStepByID(ctx context.Context, stepID string) (StepDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[stepID]
	if !ok {
		return StepDetail{}, ErrNotFound
	}
	v, ok := r.versions[s.VersionID]
	if !ok {
		return StepDetail{}, ErrNotFound
	}
	a, ok := r.items[v.AnalysisID]
	if !ok {
		return StepDetail{}, ErrNotFound
	}
	return StepDetail{Step: s, Version: v, Analysis: a}, nil
}

func (r *MemoryRepo) ListStepsByVersion(ctx context.Context, versionID string) ([]StepResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepsForVersion(versionID), nil
}

func (r *MemoryRepo) UpdateStepStatus(ctx context.Context, stepID string, status StepStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[stepID]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	r.steps[stepID] = s
	return nil
}

func (r *MemoryRepo) UpdateStepResult(ctx context.Context, stepID string, status StepStatus, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[stepID]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.Content = content
	s.UpdatedAt = time.Now().UTC()
	r.steps[stepID] = s
	return nil
}

func (r *MemoryRepo) SetVersionResult(ctx context.Context, versionID, resultKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[versionID]
	if !ok {
		return ErrNotFound
	}
	v.ResultKey = resultKey
	r.versions[versionID] = v
	return nil
}

func (r *MemoryRepo) ListByStatus(ctx context.Context, status Status) ([]Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Analysis
	for _, a := range r.items {
		if a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) MarkStaleTranscriptions(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, a := range r.items {
		if a.Status == StatusTranscriptionInProgress && a.UpdatedAt.Before(cutoff) {
			a.Status = StatusTranscriptionFailed
			a.ErrorMessage = "transcription timed out"
			a.UpdatedAt = time.Now().UTC()
			r.items[id] = a
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
