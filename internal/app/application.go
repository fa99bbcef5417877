// Package app wires configuration, storage, the processor client, the
// reconciliation engine and the HTTP server into a runnable service.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	_ "github.com/lib/pq"

	"github.com/canwork/escrow-service/internal/config"
	"github.com/canwork/escrow-service/internal/escrow"
	"github.com/canwork/escrow-service/internal/httpapi"
	"github.com/canwork/escrow-service/internal/jobs"
	"github.com/canwork/escrow-service/internal/payments"
	"github.com/canwork/escrow-service/internal/processor"
	"github.com/canwork/escrow-service/internal/storage"
	"github.com/canwork/escrow-service/internal/storage/memory"
	"github.com/canwork/escrow-service/internal/storage/postgres"
	redisstore "github.com/canwork/escrow-service/internal/storage/redis"
	"github.com/canwork/escrow-service/pkg/logger"
)

// Application holds the assembled service and its lifecycle hooks.
type Application struct {
	cfg       config.Config
	log       *logger.Logger
	store     storage.Store
	scheduler *escrow.CronScheduler
	monitor   *escrow.Monitor
	payments  *payments.Service
	jobs      *jobs.Service
	server    *http.Server

	closers []func() error
}

// New assembles the application from configuration.
func New(ctx context.Context, cfg config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithService("escrow-service")

	a := &Application{cfg: cfg, log: log}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	client := processor.NewHTTPClient(processor.Config{
		BaseURL:           cfg.Processor.BaseURL,
		APIKey:            cfg.Processor.APIKey,
		APISecret:         cfg.Processor.APISecret,
		RequestsPerSecond: cfg.Processor.RequestsPerSecond,
		Timeout:           cfg.Processor.Timeout,
	}, log.WithService("processor"))

	a.scheduler = escrow.NewCronScheduler(cfg.Monitor.PollSpec, log.WithService("scheduler"))
	a.monitor = escrow.NewMonitor(client, store, store, a.scheduler, log.WithService("monitor"))
	a.monitor.SetTokenDecimals(cfg.Monitor.TokenDecimals)

	a.payments = payments.NewService(store, store, client, a.monitor, a.scheduler, log.WithService("payments"))
	a.jobs = jobs.NewService(store, log.WithService("jobs"))

	handler := httpapi.NewHandler(a.jobs, a.payments, log.WithService("httpapi"))
	a.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

func (a *Application) openStore(ctx context.Context) (storage.Store, error) {
	switch a.cfg.Storage.Driver {
	case "memory":
		a.log.Info("using in-memory storage")
		return memory.New(), nil

	case "postgres":
		db, err := sql.Open("postgres", a.cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.log.WithField("host", a.cfg.Database.Host).Info("using postgres storage")
		return postgres.New(db), nil

	case "redis":
		store, err := redisstore.Open(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.log.WithField("addr", a.cfg.Redis.Addr).Info("using redis storage")
		return store, nil

	default:
		return nil, fmt.Errorf("storage driver %q is not supported", a.cfg.Storage.Driver)
	}
}

// Run starts the HTTP server and, when configured, resumes monitoring of
// non-terminal payments. It blocks until the server stops or ctx is
// cancelled, then shuts the application down.
func (a *Application) Run(ctx context.Context) error {
	if a.cfg.Monitor.ResumeOnStart {
		if _, err := a.payments.Resume(ctx); err != nil {
			a.log.WithError(err).Warn("failed to resume payment monitoring")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", a.server.Addr).Info("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.shutdown(context.Background())
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx)
	}
}

func (a *Application) shutdown(ctx context.Context) error {
	a.log.Info("shutting down")

	err := a.server.Shutdown(ctx)
	a.scheduler.Stop()
	for _, close := range a.closers {
		if cerr := close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
