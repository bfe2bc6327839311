package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/trust/internal/adapters/http/api"
	"github.com/okian/trust/internal/adapters/http/swagger"
	"github.com/okian/trust/internal/adapters/repository"
	service "github.com/okian/trust/internal/app"
	"github.com/okian/trust/internal/config"
	"github.com/okian/trust/pkg/logger"
	"github.com/okian/trust/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := boot(); err != nil {
		os.Stderr.WriteString("trust: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func boot() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	return run(ctx, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error(ctx, "close application", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx, cfg.SystemMetricsInterval())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.StoreDriver),
			logger.String("lock", cfg.LockBackend),
			logger.String("auth", cfg.AuthMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// application owns the components built from a Config.
type application struct {
	engine  *service.Engine
	handler http.Handler
	release func() error
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	cat, err := cfg.BuildCatalog()
	if err != nil {
		return nil, err
	}
	levels, err := cfg.BuildLevels()
	if err != nil {
		return nil, err
	}
	calc, err := cfg.BuildCalculator(cat)
	if err != nil {
		return nil, err
	}
	authn, err := cfg.BuildAuthenticator()
	if err != nil {
		return nil, err
	}
	metrics.SetScoreBounds(cfg.MinScore, cfg.MaxScore)

	store, err := repository.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	guard, release, err := cfg.BuildGuard(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build guard: %w", err)
	}

	engine, err := service.New(store,
		service.WithCatalog(cat),
		service.WithCalculator(calc),
		service.WithLevels(levels),
		service.WithGuard(guard),
		service.WithPolicy(cfg.BuildPolicy()),
		service.WithHistoryLimits(cfg.DefaultHistoryLimit, cfg.MaxHistoryLimit),
		service.WithLogger(logger.Named("engine")),
	)
	if err != nil {
		_ = release()
		_ = store.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(engine, engine, authn).Register(ctx, mux)

	return &application{engine: engine, handler: mux, release: release}, nil
}

// Close stops the engine, which closes the store, then releases the guard.
func (a *application) Close() error {
	return errors.Join(a.engine.Close(), a.release())
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
