package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/gbilton/elections-2022/internal/adapter/httpserver"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/adapter/redis"
	"github.com/gbilton/elections-2022/internal/app"
	"github.com/gbilton/elections-2022/internal/bootstrap"
	"github.com/gbilton/elections-2022/internal/platform/config"
	"github.com/gbilton/elections-2022/internal/projection"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := bootstrap.Setup("worker")
	if cfg.QueueMode != config.QueueModeRedis {
		bootstrap.Fatal("Worker needs a shared queue",
			errors.New("QUEUE_MODE=memory runs the worker inside the collector"))
	}

	ctx, stop := bootstrap.SignalContext()
	defer stop()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	queueMetrics := metrics.NewQueueMetrics(reg)

	pool, store := bootstrap.SetupDB(ctx, cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	rdb := bootstrap.SetupRedis(ctx, cfg, queueMetrics)
	defer func() { _ = rdb.Close() }()

	queue := redis.NewQueue(rdb, redis.DefaultQueueKey, queueMetrics)
	worker := app.NewWorker(queue, projection.NewEngine(cfg.Candidates), store, clock, metrics.NewProjectionMetrics(reg))

	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: store.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return bootstrap.Serve(gctx, httpserver.NewOpsServer(cfg.MetricsPort, metrics.Handler(reg), checks))
	})

	if err := g.Wait(); err != nil {
		slog.Error("Worker stopped with error", "error", err)
		return 1
	}
	slog.Info("Worker stopped")
	return 0
}
