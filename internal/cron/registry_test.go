package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndCopies(t *testing.T) {
	jobA := &stubJob{name: "b-job"}
	jobB := &stubJob{name: "a-job"}
	registry := NewRegistry(jobA, nil, jobB)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0] != jobA || jobs[1] != jobB {
		t.Fatalf("jobs returned out of order")
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
	if names := registry.Names(); names[0] != "a-job" || names[1] != "b-job" {
		t.Fatalf("expected sorted names got %v", names)
	}
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "sweep"})
	if err := registry.Register(&stubJob{name: "sweep"}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if len(registry.Jobs()) != 1 {
		t.Fatalf("duplicate should not be stored")
	}
}

func TestRegistryFind(t *testing.T) {
	job := &stubJob{name: "sweep"}
	registry := NewRegistry(job)

	if got, ok := registry.Find("sweep"); !ok || got != job {
		t.Fatalf("expected to find job")
	}
	if _, ok := registry.Find("missing"); ok {
		t.Fatalf("unexpected job")
	}
}
