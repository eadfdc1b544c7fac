package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sandeepkv93/portal-credential-exchange/internal/config"
	"github.com/sandeepkv93/portal-credential-exchange/internal/health"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Redis         io.Closer
	Database      io.Closer
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	redisCloser io.Closer,
	dbCloser io.Closer,
	readiness *health.ProbeRunner,
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Redis:                        redisCloser,
		Database:                     dbCloser,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", ln.Addr().String())
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.Logger.Error("http server failed", "error", serveErr.Error())
		}
	}
	return errors.Join(serveErr, a.Shutdown(context.Background()))
}

// Shutdown marks the process unready, drains HTTP, closes clients and
// flushes telemetry, each step bounded by its own timeout inside the overall budget.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, positive(a.ShutdownTimeout, 20*time.Second))
	defer cancel()

	if a.Readiness != nil {
		a.Readiness.SetDraining()
	}
	var errs []error

	drainCtx, drainCancel := context.WithTimeout(ctx, positive(a.ShutdownHTTPDrainTimeout, 10*time.Second))
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	drainCancel()

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.Database != nil {
		if err := a.Database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	obsCtx, obsCancel := context.WithTimeout(ctx, positive(a.ShutdownObservabilityTimeout, 5*time.Second))
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	obsCancel()

	if len(errs) > 0 {
		a.Logger.Error("shutdown completed with errors", "error", errors.Join(errs...).Error())
	} else {
		a.Logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
