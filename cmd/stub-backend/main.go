package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/credash/internal/adapters/http/stub"
	"github.com/okian/credash/internal/config"
	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants. No write timeout: /ws/latest stays open.
const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Named("stub")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metrics.WithSubsystem("stub"))

	store := stub.NewStore(cfg.StubIssuers, time.Now().UnixNano(), nil)
	go store.Run(ctx, cfg.StubTick())

	api := stub.NewServer(store, stub.WithLogger(log), stub.WithPushTick(cfg.StubTick()))
	srv := newServer(cfg.StubAddr, api)

	go func() {
		log.Info(ctx, "starting stub backend",
			logger.String("addr", cfg.StubAddr),
			logger.Int("issuers", cfg.StubIssuers),
			logger.Duration("tick", cfg.StubTick()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "stub backend failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down stub backend...")

	// Shutdown does not track hijacked websocket connections.
	api.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "stub backend stopped", logger.Int("scores", store.Count()))
}

func newServer(addr string, api *stub.Server) *http.Server {
	mux := http.NewServeMux()
	api.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
