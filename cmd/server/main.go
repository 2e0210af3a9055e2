package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mantrip/internal/attendance"
	"mantrip/internal/attendance/client"
	"mantrip/internal/attendance/events"
	attendanceMetrics "mantrip/internal/attendance/metrics"
	"mantrip/internal/attendance/service"
	"mantrip/internal/attendance/store/record"
	"mantrip/internal/platform/config"
	"mantrip/internal/platform/httpserver"
	"mantrip/internal/platform/logger"
	"mantrip/internal/platform/metrics"
	"mantrip/internal/platform/postgres"
	redisClient "mantrip/internal/platform/redis"
	"mantrip/internal/tracker"
	"mantrip/internal/tracker/adapters"
	trackerHandler "mantrip/internal/tracker/handler"
	trackerMetrics "mantrip/internal/tracker/metrics"
	httptransport "mantrip/internal/transport/http"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

type cleanup func()

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var cleanups []cleanup
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	store, health, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeStore)

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(attendanceMetrics.New(registry)),
	}
	if cfg.Kafka.Enabled() {
		publisher, err := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		cleanups = append(cleanups, func() { _ = publisher.Close() })
		if err := publisher.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			return fmt.Errorf("ensure kafka topic: %w", err)
		}
		svcOpts = append(svcOpts, service.WithPublisher(publisher))
		log.Info("publishing attendance events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	svc, err := attendance.NewService(store, svcOpts...)
	if err != nil {
		return fmt.Errorf("create attendance service: %w", err)
	}

	remote, err := buildRemote(cfg, svc)
	if err != nil {
		return err
	}
	feed := tracker.NewFeed(cfg.Tracker.NotificationSize)
	engine, err := tracker.NewEngine(remote,
		tracker.WithNotifier(feed),
		tracker.WithLogger(log),
		tracker.WithMetrics(trackerMetrics.New(registry)),
	)
	if err != nil {
		return fmt.Errorf("create reconciliation engine: %w", err)
	}
	names := cfg.Tracker.Roster
	if len(names) == 0 {
		names = tracker.DefaultRoster
	}
	var rosterOpts []tracker.RosterOption
	if cfg.Tracker.PropagateDeletes {
		rosterOpts = append(rosterOpts, tracker.WithDeletePropagation())
	}
	roster, err := tracker.NewRoster(engine, names, rosterOpts...)
	if err != nil {
		return fmt.Errorf("create roster: %w", err)
	}
	ui, err := trackerHandler.New(engine, roster, feed, log)
	if err != nil {
		return fmt.Errorf("create tracker handler: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Registry: registry,
		Metrics:  metrics.New(registry),
		API:      attendance.NewHandler(svc, log),
		UI:       ui,
		Health:   health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting mantrip", "addr", cfg.Addr, "store", cfg.Store.Backend)
		return httpserver.Run(gctx, srv, cfg.ShutdownTimeout)
	})
	g.Go(func() error {
		// A failed first load is surfaced in the grid and retried through reload.
		if err := engine.Load(gctx); err != nil {
			log.Warn("initial attendance load failed", "error", err)
		}
		return nil
	})
	return g.Wait()
}

func buildStore(ctx context.Context, cfg config.Server, log *slog.Logger) (service.Store, map[string]httptransport.HealthCheck, cleanup, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		store := record.NewPostgres(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		log.Info("using postgres attendance store")
		health := map[string]httptransport.HealthCheck{"postgres": db.PingContext}
		return store, health, func() { _ = db.Close() }, nil
	case config.BackendRedis:
		rc, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		log.Info("using redis attendance store")
		health := map[string]httptransport.HealthCheck{"redis": rc.Health}
		return record.NewRedis(rc.Client), health, func() { _ = rc.Close() }, nil
	default:
		log.Info("using in-memory attendance store")
		return record.NewInMemory(), nil, func() {}, nil
	}
}

// buildRemote picks the tracker's view of the attendance resource: an HTTP
// client when a base URL is configured, the in-process service otherwise.
func buildRemote(cfg config.Server, svc *service.Service) (tracker.RemoteStore, error) {
	if cfg.Tracker.StoreURL == "" {
		return adapters.NewAttendanceAdapter(svc), nil
	}
	c, err := client.New(cfg.Tracker.StoreURL, client.WithTimeout(cfg.Tracker.ClientTimeout))
	if err != nil {
		return nil, fmt.Errorf("create attendance client: %w", err)
	}
	return c, nil
}
