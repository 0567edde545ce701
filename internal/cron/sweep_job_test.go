package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/huddle-backend/pkg/logger"
)

func TestSweepJobRunsSweep(t *testing.T) {
	calls := 0
	job, err := NewSweepJob(SweepJobParams{
		Name:   "presence-sweep",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sweep: Counter(func() int {
			calls++
			return 3
		}),
	})
	if err != nil {
		t.Fatalf("NewSweepJob: %v", err)
	}
	if job.Name() != "presence-sweep" {
		t.Fatalf("unexpected name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one sweep, got %d", calls)
	}
}

func TestSweepJobPropagatesError(t *testing.T) {
	job, err := NewSweepJob(SweepJobParams{
		Name:   "idempotency-sweep",
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Sweep: func(context.Context) (int, error) {
			return 0, errors.New("boom")
		},
	})
	if err != nil {
		t.Fatalf("NewSweepJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSweepJobValidates(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if _, err := NewSweepJob(SweepJobParams{Logger: logg, Sweep: Counter(func() int { return 0 })}); err == nil {
		t.Fatal("expected missing name error")
	}
	if _, err := NewSweepJob(SweepJobParams{Name: "x", Logger: logg}); err == nil {
		t.Fatal("expected missing sweep error")
	}
}
