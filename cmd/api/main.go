package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/huddle-backend/api/controllers"
	"github.com/angelmondragon/huddle-backend/api/routes"
	"github.com/angelmondragon/huddle-backend/internal/broadcast"
	"github.com/angelmondragon/huddle-backend/internal/cron"
	"github.com/angelmondragon/huddle-backend/internal/drafts"
	"github.com/angelmondragon/huddle-backend/internal/events"
	"github.com/angelmondragon/huddle-backend/internal/idempotency"
	"github.com/angelmondragon/huddle-backend/internal/outbox"
	"github.com/angelmondragon/huddle-backend/internal/presence"
	"github.com/angelmondragon/huddle-backend/internal/quiethours"
	"github.com/angelmondragon/huddle-backend/internal/ratelimit"
	"github.com/angelmondragon/huddle-backend/internal/realtime"
	"github.com/angelmondragon/huddle-backend/internal/tasks"
	"github.com/angelmondragon/huddle-backend/pkg/config"
	"github.com/angelmondragon/huddle-backend/pkg/db"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
	"github.com/angelmondragon/huddle-backend/pkg/instance"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
	"github.com/angelmondragon/huddle-backend/pkg/migrate"
	"github.com/angelmondragon/huddle-backend/pkg/pubsub"
	"github.com/angelmondragon/huddle-backend/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	ready := map[string]controllers.Pinger{"database": dbClient}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		ready["redis"] = redisClient
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rtMetrics := metrics.NewRealtimeMetrics(reg)
	cronMetrics := metrics.NewCronJobMetrics(reg)

	var broadcaster broadcast.Broadcaster = broadcast.NewLogBroadcaster(logg)
	if cfg.PubSub.Enabled() {
		var psClient *pubsub.Client
		psClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return err
		}
		ps := broadcast.NewPubSubBroadcaster(psClient.RealtimePublisher(), logg, rtMetrics.IncBroadcastFailure)
		defer func() {
			ps.Wait()
			err = multierr.Append(err, psClient.Close())
		}()
		broadcaster = ps
		ready["pubsub"] = psClient
	}

	eventLog := events.NewLog(cfg.Realtime.MaxEvents, events.WithEvictHook(func(events.Event) {
		rtMetrics.IncEventEvicted()
	}))
	rt, err := realtime.NewService(realtime.Deps{
		Log:         eventLog,
		Presence:    presence.NewTracker(cfg.Realtime.PresenceTTL),
		Outbox:      outbox.NewQueue(cfg.Realtime.OutboxCapacity),
		Drafts:      drafts.NewCoordinator(cfg.Realtime.DraftLockTTL),
		Broadcaster: broadcaster,
		Metrics:     rtMetrics,
		Logger:      logg,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	var (
		idemStore   idempotency.Store
		memoryStore *idempotency.MemoryStore
	)
	switch cfg.Idempotency.Backend {
	case config.IdempotencyBackendRedis:
		idemStore = idempotency.NewRedisStore(redisClient)
	default:
		memoryStore = idempotency.NewMemoryStore()
		idemStore = memoryStore
	}
	guard := idempotency.NewGuard(idemStore, cfg.Idempotency.TTL)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled() {
		limiter = ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Max)
	}

	taskService, err := tasks.NewService(
		tasks.NewRepository(dbClient.DB()),
		dbClient,
		rt,
		rtMetrics,
		tasks.WIPLimits{
			enums.TaskStatusInProgress: cfg.Tasks.WIPLimitInProgress,
			enums.TaskStatusReview:     cfg.Tasks.WIPLimitReview,
		},
	)
	if err != nil {
		return err
	}
	quietHours := quiethours.NewService(quiethours.NewRepository(dbClient.DB()))

	sweeps, err := newSweeps(cfg, logg, cronMetrics, rt, limiter, memoryStore)
	if err != nil {
		return err
	}

	addr := ":" + listenPort(cfg)
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			Realtime:    rt,
			Tasks:       taskService,
			QuietHours:  quietHours,
			Limiter:     limiter,
			Idempotency: guard,
			Metrics:     rtMetrics,
			Gatherer:    reg,
			Ready:       ready,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeps.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down gracefully")
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSweeps registers the periodic maintenance jobs. Every job frees memory
// owned by this process, so each replica sweeps under its own local lock.
func newSweeps(
	cfg *config.Config,
	logg *logger.Logger,
	cronMetrics *metrics.CronJobMetrics,
	rt *realtime.Service,
	limiter *ratelimit.Limiter,
	memoryStore *idempotency.MemoryStore,
) (*cron.Service, error) {
	sweeps := map[string]cron.SweepFunc{
		"presence-sweep": cron.Counter(rt.SweepPresence),
		"draft-prune": cron.Counter(func() int {
			return rt.PruneDrafts(cfg.Realtime.DraftIdleTTL)
		}),
	}
	if limiter != nil {
		sweeps["rate-limit-sweep"] = cron.Counter(limiter.Sweep)
	}
	if memoryStore != nil {
		sweeps["idempotency-sweep"] = cron.Counter(memoryStore.Sweep)
	}

	registry, err := cron.NewRegistry()
	if err != nil {
		return nil, err
	}
	for name, fn := range sweeps {
		job, err := cron.NewSweepJob(cron.SweepJobParams{Name: name, Logger: logg, Metrics: cronMetrics, Sweep: fn})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cron.NewLocalLock(),
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
}

func listenPort(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return cfg.App.Port
}
