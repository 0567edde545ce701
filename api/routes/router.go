package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/huddle-backend/api/controllers"
	"github.com/angelmondragon/huddle-backend/api/middleware"
	"github.com/angelmondragon/huddle-backend/internal/idempotency"
	"github.com/angelmondragon/huddle-backend/internal/quiethours"
	"github.com/angelmondragon/huddle-backend/internal/ratelimit"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/internal/tasks"
	"github.com/angelmondragon/huddle-backend/pkg/config"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

// Dependencies are the services and cross-cutting components the HTTP
// surface is built from.
type Dependencies struct {
	Realtime    *realtime.Service
	Tasks       tasks.Service
	QuietHours  quiethours.Service
	Limiter     *ratelimit.Limiter
	Idempotency *idempotency.Guard
	Metrics     *metrics.RealtimeMetrics
	Gatherer    prometheus.Gatherer
	Ready       map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Ready, logg))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	rt := deps.Realtime
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(cfg.Identity, cfg.JWT, logg))
		r.Use(middleware.RateLimit(deps.Limiter, deps.Metrics, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, deps.Metrics, logg))

		r.Route("/events", func(r chi.Router) {
			r.Get("/", controllers.PollEvents(rt, logg))
			r.Post("/", controllers.AppendEvent(rt, logg))
		})

		r.Route("/presence", func(r chi.Router) {
			r.Get("/", controllers.ListPresence(rt, logg))
			r.Post("/heartbeat", controllers.PresenceHeartbeat(rt, logg))
			r.Get("/{userId}", controllers.GetPresence(rt, logg))
		})

		r.Route("/outbox", func(r chi.Router) {
			r.Get("/", controllers.ListOutbox(rt, logg))
			r.Post("/", controllers.EnqueueOutbox(rt, logg))
			r.Delete("/", controllers.ClearOutbox(rt, logg))
			r.Post("/flush", controllers.FlushOutbox(rt, logg))
			r.Delete("/{itemId}", controllers.DequeueOutbox(rt, logg))
		})

		r.Route("/drafts/{draftId}", func(r chi.Router) {
			r.Get("/", controllers.GetDraft(rt, logg))
			r.Put("/", controllers.SaveDraft(rt, logg))
			r.Post("/lock", controllers.AcquireDraftLock(rt, logg))
			r.Delete("/lock", controllers.ReleaseDraftLock(rt, logg))
			r.Post("/lock/heartbeat", controllers.HeartbeatDraftLock(rt, logg))
		})

		r.Route("/boards/{boardId}", func(r chi.Router) {
			r.Get("/tasks", controllers.ListTasks(deps.Tasks, logg))
			r.Post("/tasks", controllers.CreateTask(deps.Tasks, logg))
			r.Put("/dependencies", controllers.UpdateDependencies(deps.Tasks, logg))
			r.Patch("/tasks/{taskId}/status", controllers.TransitionTaskStatus(deps.Tasks, logg))
		})

		r.Put("/me/quiet-hours", controllers.SetQuietHours(deps.QuietHours, logg))
		r.Get("/me/notification-delivery", controllers.NotificationDelivery(deps.QuietHours, logg))
	})

	return r
}
