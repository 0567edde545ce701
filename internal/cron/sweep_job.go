package cron

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

// SweepFunc removes expired state and reports how many entries it dropped.
type SweepFunc func(ctx context.Context) (int, error)

type SweepJobParams struct {
	Name    string
	Logger  *logger.Logger
	Metrics *metrics.CronJobMetrics
	Sweep   SweepFunc
}

type sweepJob struct {
	name    string
	logg    *logger.Logger
	metrics *metrics.CronJobMetrics
	sweep   SweepFunc
}

func NewSweepJob(params SweepJobParams) (Job, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("job name required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweep == nil {
		return nil, fmt.Errorf("sweep func required")
	}
	return &sweepJob{name: name, logg: params.Logger, metrics: params.Metrics, sweep: params.Sweep}, nil
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	removed, err := j.sweep(ctx)
	if err != nil {
		return err
	}
	j.metrics.AddRemoved(j.name, removed)
	if removed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "removed", removed), "sweep removed expired entries")
	}
	return nil
}

// Counter adapts a context-free sweep such as Tracker.Sweep.
func Counter(fn func() int) SweepFunc {
	return func(context.Context) (int, error) {
		return fn(), nil
	}
}
