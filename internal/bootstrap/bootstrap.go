// Package bootstrap holds the process wiring shared by the collector, the
// worker and the API server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/feed"
	"github.com/gbilton/elections-2022/internal/adapter/httpserver"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/adapter/postgres"
	"github.com/gbilton/elections-2022/internal/adapter/redis"
	"github.com/gbilton/elections-2022/internal/platform/config"
	"github.com/gbilton/elections-2022/internal/platform/logging"
	"github.com/gbilton/elections-2022/internal/platform/version"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Setup loads configuration and installs the global logger. Configuration
// errors are fatal.
func Setup(process string) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	attrs := append([]any{"process", process, "env", cfg.AppEnv, "queue_mode", cfg.QueueMode}, version.Get().LogAttrs()...)
	slog.Info("Application starting", attrs...)

	return cfg
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Fatal logs and exits.
func Fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

// SetupDB connects to Postgres with query metrics and applies migrations.
func SetupDB(ctx context.Context, cfg *config.Config, m *metrics.DBMetrics) (*pgxpool.Pool, *postgres.Store) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewMetricsTracer(m))
	if err != nil {
		Fatal("Failed to connect to database", err)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		Fatal("Failed to run migrations", err)
	}

	return pool, postgres.NewStore(pool)
}

// SetupRedis connects to Redis behind a circuit breaker.
func SetupRedis(ctx context.Context, cfg *config.Config, m *metrics.QueueMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	rdb, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewCircuitBreakerHook(m))
	if err != nil {
		Fatal("Failed to connect to Redis", err)
	}
	return rdb
}

// FeedClient builds a breaker-guarded HTTP client whose transitions are
// counted on m.
func FeedClient(name string, cfg *config.Config, m *metrics.ImportMetrics) *feed.Client {
	return feed.NewClient(name, cfg.FetchTimeout, BreakerObserver(m))
}

// BreakerObserver counts breaker transitions by target state. m may be nil.
func BreakerObserver(m *metrics.ImportMetrics) feed.BreakerObserver {
	return func(name string, _, to gobreaker.State) {
		if m == nil {
			return
		}
		m.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
	}
}

// InstanceID identifies this process among replicas.
func InstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *httpserver.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, cleaning up...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
