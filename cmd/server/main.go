package main

import (
	"log/slog"
	"os"

	"github.com/gbilton/elections-2022/internal/adapter/httpserver"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/bootstrap"
)

func main() {
	cfg := bootstrap.Setup("server")
	ctx, stop := bootstrap.SignalContext()
	defer stop()

	reg := metrics.NewRegistry()

	pool, store := bootstrap.SetupDB(ctx, cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	checks := []httpserver.HealthCheck{{Name: "postgres", Check: store.Ping}}
	srv := httpserver.NewServer(cfg, store, metrics.NewHTTPMetrics(reg), metrics.Handler(reg), checks)

	if err := bootstrap.Serve(ctx, srv); err != nil {
		slog.Error("Server error", "error", err)
		pool.Close()
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
