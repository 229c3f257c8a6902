package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/feed"
	"github.com/gbilton/elections-2022/internal/adapter/httpserver"
	"github.com/gbilton/elections-2022/internal/adapter/memory"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/adapter/redis"
	"github.com/gbilton/elections-2022/internal/app"
	"github.com/gbilton/elections-2022/internal/bootstrap"
	"github.com/gbilton/elections-2022/internal/catalog"
	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/config"
	"github.com/gbilton/elections-2022/internal/projection"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	// Wait for the in-process worker to pick up the single task in -once mode.
	onceDrainWait = 2 * time.Second
	// Readiness fails after this many poll intervals without a finished cycle.
	staleCycles = 3
)

func main() {
	once := flag.Bool("once", false, "run a single import cycle and exit")
	flag.Parse()

	os.Exit(run(*once))
}

func run(once bool) int {
	cfg := bootstrap.Setup("collector")
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	clock := clockwork.NewRealClock()
	reg := metrics.NewRegistry()
	importMetrics := metrics.NewImportMetrics(reg)

	pool, store := bootstrap.SetupDB(ctx, cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	catalogClient := bootstrap.FeedClient("catalog", cfg, importMetrics)
	resultsClient := bootstrap.FeedClient("results", cfg, importMetrics)
	units := catalog.New(store, feed.NewCatalogSource(catalogClient, cfg.CatalogURL), catalog.DefaultPolicy)
	fetcher := feed.NewResultFetcher(resultsClient, cfg.ResultsURLTemplate)

	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: store.Ping},
		{Name: "results_feed", Check: resultsClient.Check},
	}

	var (
		queue  domain.JobQueue
		worker *app.Worker
		lease  *redis.CycleLease
	)
	switch cfg.QueueMode {
	case config.QueueModeMemory:
		q := memory.NewQueue(clock)
		queue = q
		worker = app.NewWorker(q, projection.NewEngine(cfg.Candidates), store, clock, metrics.NewProjectionMetrics(reg))
	default:
		queueMetrics := metrics.NewQueueMetrics(reg)
		rdb := bootstrap.SetupRedis(ctx, cfg, queueMetrics)
		defer func() { _ = rdb.Close() }()

		queue = redis.NewQueue(rdb, redis.DefaultQueueKey, queueMetrics)
		lease = redis.NewCycleLease(rdb, bootstrap.InstanceID(), cfg.PollInterval*9/10)
		checks = append(checks, httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	collector := app.NewCollector(units, fetcher, store, queue, clock, cfg.PollInterval, importMetrics)
	checks = append(checks, httpserver.HealthCheck{Name: "import_cycle", Check: collector.CheckFresh(staleCycles * cfg.PollInterval)})

	if once {
		return runOnce(ctx, collector, queue, worker)
	}

	if lease != nil {
		collector.WithGuard(lease)
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil {
				slog.Warn("Failed to release cycle lease", "error", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collector.Run(gctx)
		return nil
	})
	if worker != nil {
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return bootstrap.Serve(gctx, httpserver.NewOpsServer(cfg.MetricsPort, metrics.Handler(reg), checks))
	})

	if err := g.Wait(); err != nil {
		slog.Error("Collector stopped with error", "error", err)
		return 1
	}
	slog.Info("Collector stopped")
	return 0
}

// runOnce imports one snapshot and, with an in-process worker, projects it
// before returning. It returns the process exit code.
func runOnce(ctx context.Context, collector *app.Collector, queue domain.JobQueue, worker *app.Worker) int {
	report, err := collector.RunOnce(ctx)
	if err != nil {
		slog.Error("Import failed", "error", err)
		return 1
	}
	slog.Info("Import finished",
		"snapshot_id", report.SnapshotID,
		"units", len(report.Units),
		"fetch_failures", len(report.FetchFailures),
		"extract_failures", len(report.ExtractFailures),
		"enqueued", report.Enqueued,
	)

	if worker == nil || !report.Enqueued {
		return 0
	}

	task, err := queue.Dequeue(ctx, onceDrainWait)
	if err != nil || task == nil {
		slog.Error("Projection task was not available", "error", err)
		return 1
	}
	if _, err := worker.Handle(ctx, *task); err != nil && !errors.Is(err, domain.ErrProjectionSkipped) {
		slog.Error("Projection failed", "error", err)
		return 1
	}
	return 0
}
