package promptflows

import (
	"context"
	"errors"
	"testing"
)

func TestCreateNormalizesStepOrder(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}
	flow, err := svc.Create(context.Background(), "u1", "Meeting report", "", []StepInput{
		{Name: "Summary", Content: "Summarize: {transcript}"},
		{Name: "Actions", Content: "List actions from {Summary}"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(flow.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(flow.Steps))
	}
	for i, s := range flow.Steps {
		if s.StepOrder != i {
			t.Fatalf("step %q order = %d, want %d", s.Name, s.StepOrder, i)
		}
	}
}

func TestCreateRejectsDuplicateStepNames(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}
	_, err := svc.Create(context.Background(), "u1", "Flow", "", []StepInput{
		{Name: "Summary", Content: "a"},
		{Name: "Summary", Content: "b"},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestGetHidesOtherUsersFlows(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}
	flow, err := svc.Create(context.Background(), "u1", "Flow", "", []StepInput{{Name: "S", Content: "c"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(context.Background(), "u2", flow.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateReplacesSteps(t *testing.T) {
	svc := &Service{Repo: NewMemoryRepo()}
	flow, err := svc.Create(context.Background(), "u1", "Flow", "", []StepInput{
		{Name: "A", Content: "a"},
		{Name: "B", Content: "b"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.Update(context.Background(), "u1", flow.ID, "Flow v2", "desc", []StepInput{
		{Name: "Only", Content: "only"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Flow v2" || len(updated.Steps) != 1 || updated.Steps[0].Name != "Only" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	got, err := svc.Get(context.Background(), "u1", flow.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("persisted steps = %d, want 1", len(got.Steps))
	}
}
