package main

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/huddle-backend/internal/drafts"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/internal/idempotency"
	"github.com/angelmondragon/huddle-backend/internal/outbox"
	"github.com/angelmondragon/huddle-backend/internal/presence"
	"github.com/angelmondragon/huddle-backend/internal/ratelimit"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/pkg/config"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

func newReplicaRealtime(t *testing.T, logg *logger.Logger) *realtime.Service {
	t.Helper()
	svc, err := realtime.NewService(realtime.Deps{
		Log:      events.NewLog(10),
		Presence: presence.NewTracker(time.Millisecond),
		Outbox:   outbox.NewQueue(10),
		Drafts:   drafts.NewCoordinator(time.Minute),
		Logger:   logg,
	})
	if err != nil {
		t.Fatalf("realtime.NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func TestEveryReplicaSweepsItsOwnState(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cfg := &config.Config{
		Realtime: config.RealtimeConfig{DraftIdleTTL: time.Hour},
		Cron:     config.CronConfig{Interval: time.Minute},
	}
	ctx := context.Background()

	for _, replica := range []string{"a", "b"} {
		rt := newReplicaRealtime(t, logg)
		if _, err := rt.Heartbeat(ctx, "user-"+replica, "online"); err != nil {
			t.Fatalf("heartbeat: %v", err)
		}
		time.Sleep(5 * time.Millisecond)

		reg := prometheus.NewRegistry()
		sweeps, err := newSweeps(cfg, logg, metrics.NewCronJobMetrics(reg), rt,
			ratelimit.New(time.Second, 5), idempotency.NewMemoryStore())
		if err != nil {
			t.Fatalf("newSweeps: %v", err)
		}
		report, err := sweeps.RunOnce(ctx)
		if err != nil {
			t.Fatalf("replica %s: RunOnce: %v", replica, err)
		}
		if report.Skipped {
			t.Fatalf("replica %s skipped its sweep", replica)
		}
		ran := append([]string(nil), report.Ran...)
		sort.Strings(ran)
		want := []string{"draft-prune", "idempotency-sweep", "presence-sweep", "rate-limit-sweep"}
		if len(ran) != len(want) {
			t.Fatalf("replica %s ran %v, want %v", replica, ran, want)
		}
		for i := range want {
			if ran[i] != want[i] {
				t.Fatalf("replica %s ran %v, want %v", replica, ran, want)
			}
		}
		if got := sweptEntries(t, reg, "presence-sweep"); got != 1 {
			t.Fatalf("replica %s swept %v presence records, want 1", replica, got)
		}
	}
}

func sweptEntries(t *testing.T, reg *prometheus.Registry, job string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "huddle_cron_swept_entries_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
