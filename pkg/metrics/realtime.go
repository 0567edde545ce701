package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "huddle"

// RealtimeMetrics counts notable outcomes of the realtime pipeline. A nil
// receiver or one built without a registerer records nothing.
type RealtimeMetrics struct {
	eventsAppended    *prometheus.CounterVec
	eventsEvicted     prometheus.Counter
	cursorExpired     prometheus.Counter
	heartbeats        *prometheus.CounterVec
	presenceLive      prometheus.Gauge
	outboxEvicted     prometheus.Counter
	draftConflicts    prometheus.Counter
	idempotentReplays prometheus.Counter
	rateLimited       prometheus.Counter
	taskRejections    *prometheus.CounterVec
	broadcastFailures prometheus.Counter
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}
	m := &RealtimeMetrics{
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "appended_total",
			Help: "Events appended to the log by type.",
		}, []string{"type"}),
		eventsEvicted: counter("events", "evicted_total", "Events trimmed from the log to stay within retention."),
		cursorExpired: counter("events", "cursor_expired_total", "Polls rejected because the cursor predates retention."),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "presence", Name: "heartbeats_total",
			Help: "Presence heartbeats by reported status.",
		}, []string{"status"}),
		presenceLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "presence", Name: "live_users",
			Help: "Users with a live presence record at the last sweep.",
		}),
		outboxEvicted:     counter("outbox", "evicted_total", "Queued outbox entries dropped by the per-user cap."),
		draftConflicts:    counter("drafts", "conflicts_total", "Draft saves rejected as last-writer-wins conflicts."),
		idempotentReplays: counter("idempotency", "replays_total", "Mutations answered from a stored idempotency record."),
		rateLimited:       counter("http", "rate_limited_total", "Requests rejected by the per-user rate limiter."),
		taskRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tasks", Name: "rejections_total",
			Help: "Rejected dependency batches and status transitions by reason.",
		}, []string{"reason"}),
		broadcastFailures: counter("broadcast", "failures_total", "Events that could not be handed to the broadcaster."),
	}
	reg.MustRegister(
		m.eventsAppended, m.eventsEvicted, m.cursorExpired,
		m.heartbeats, m.presenceLive,
		m.outboxEvicted, m.draftConflicts, m.idempotentReplays,
		m.rateLimited, m.taskRejections, m.broadcastFailures,
	)
	return m
}

func (m *RealtimeMetrics) IncEventAppended(eventType string) {
	if m == nil || m.eventsAppended == nil {
		return
	}
	m.eventsAppended.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *RealtimeMetrics) IncEventEvicted() {
	if m == nil || m.eventsEvicted == nil {
		return
	}
	m.eventsEvicted.Inc()
}

func (m *RealtimeMetrics) IncCursorExpired() {
	if m == nil || m.cursorExpired == nil {
		return
	}
	m.cursorExpired.Inc()
}

func (m *RealtimeMetrics) IncHeartbeat(status string) {
	if m == nil || m.heartbeats == nil {
		return
	}
	m.heartbeats.WithLabelValues(normalizeLabel(status)).Inc()
}

// SetPresenceLive records the number of live presence records.
func (m *RealtimeMetrics) SetPresenceLive(n int) {
	if m == nil || m.presenceLive == nil {
		return
	}
	m.presenceLive.Set(float64(n))
}

func (m *RealtimeMetrics) AddOutboxEvicted(n int) {
	if m == nil || m.outboxEvicted == nil || n <= 0 {
		return
	}
	m.outboxEvicted.Add(float64(n))
}

func (m *RealtimeMetrics) IncDraftConflict() {
	if m == nil || m.draftConflicts == nil {
		return
	}
	m.draftConflicts.Inc()
}

func (m *RealtimeMetrics) IncIdempotentReplay() {
	if m == nil || m.idempotentReplays == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func (m *RealtimeMetrics) IncRateLimited() {
	if m == nil || m.rateLimited == nil {
		return
	}
	m.rateLimited.Inc()
}

// ObserveTaskRejection counts a rejected dependency batch or transition.
func (m *RealtimeMetrics) ObserveTaskRejection(reason string) {
	if m == nil || m.taskRejections == nil {
		return
	}
	m.taskRejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *RealtimeMetrics) IncBroadcastFailure() {
	if m == nil || m.broadcastFailures == nil {
		return
	}
	m.broadcastFailures.Inc()
}
