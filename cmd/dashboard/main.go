package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/credash/internal/adapters/transport"
	service "github.com/okian/credash/internal/app"
	"github.com/okian/credash/internal/config"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
	"github.com/okian/credash/internal/view"
	"github.com/okian/credash/pkg/logger"
	"github.com/okian/credash/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP server timeout constants for the metrics endpoint.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

const (
	// clearScreen moves the cursor home and clears the terminal.
	clearScreen       = "\033[H\033[2J"
	logFilePermission = 0o600
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Logs go to a file or stderr; stdout belongs to the dashboard.
	logOut, closeLog, err := openLogOutput(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closeLog()
	if err := logger.InitWithWriter(logOut); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metrics.WithSubsystem("dashboard"))

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start dashboard: %w", err)
	}
	defer svc.Stop()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = newMetricsServer(cfg.MetricsAddr)
		go func() {
			log.Info(ctx, "starting metrics server", logger.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "metrics server failed", logger.Error(err))
			}
		}()
	}

	go readActions(ctx, os.Stdin, svc, log)
	go renderLoop(ctx, os.Stdout, svc, cfg.RenderWidth)

	select {
	case <-ctx.Done():
		log.Info(ctx, "signal received, shutting down")
	case <-svc.Done():
		log.Info(ctx, "quit requested, shutting down")
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "metrics server shutdown failed", logger.Error(err))
		}
	}

	log.Info(ctx, "session stats", logger.Any("stats", svc.GetStats()))
	return nil
}

// buildService wires the HTTP client, the push dialer and the dashboard service from cfg.
func buildService(cfg *config.Config, log logger.Logger) (*service.Service, error) {
	client := transport.NewClient(cfg.BaseURL, cfg.APIBase(), transport.WithLogger(log.Named("transport")))

	pushURL, err := cfg.ResolvedPushURL()
	if err != nil {
		return nil, err
	}
	dialer, err := transport.NewDialer(pushURL)
	if err != nil {
		return nil, fmt.Errorf("push dialer: %w", err)
	}

	return service.New(client,
		service.WithLogger(log),
		service.WithFetchConfig(fetchConfig(cfg)),
		service.WithPushDialer(dialer),
		service.WithPollInterval(cfg.PollInterval()),
		service.WithTopDrivers(cfg.TopDrivers),
		service.WithQueueSize(cfg.ActionQueueSize),
	), nil
}

func fetchConfig(cfg *config.Config) fetch.Config {
	return fetch.Config{
		MaxAttempts:       cfg.FetchMaxAttempts,
		BaseDelay:         cfg.FetchBaseDelay(),
		BackoffMultiplier: cfg.FetchBackoffMultiplier,
		Timeout:           cfg.FetchTimeout(),
		MaxDelay:          cfg.FetchMaxDelay(),
	}
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func openLogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

type actionSink interface {
	Enqueue(ctx context.Context, a model.Action) error
	Reject(input string, err error)
}

// readActions parses one command per line and enqueues it. Input that is not
// a valid command, or that the queue refuses, is shown through Reject.
// Returns at EOF or when ctx ends.
func readActions(ctx context.Context, r io.Reader, sink actionSink, log logger.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		a, err := model.ParseAction(line)
		if err != nil {
			if !errors.Is(err, model.ErrEmptyAction) {
				log.Debug(ctx, "ignoring input", logger.String("line", line), logger.Error(err))
				sink.Reject(line, err)
			}
			continue
		}
		if err := sink.Enqueue(ctx, a); err != nil {
			log.Warn(ctx, "action dropped", logger.String("action", a.String()), logger.Error(err))
			sink.Reject(line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn(ctx, "reading input failed", logger.Error(err))
	}
}

type viewSource interface {
	View() view.Model
	Updates() <-chan struct{}
}

// renderLoop redraws the dashboard once up front and after every update.
func renderLoop(ctx context.Context, w io.Writer, src viewSource, width int) {
	draw := func() {
		_, _ = io.WriteString(w, clearScreen+view.Render(src.View(), width)+"\n")
	}
	draw()
	for {
		select {
		case <-ctx.Done():
			return
		case <-src.Updates():
			draw()
		}
	}
}
