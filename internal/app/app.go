// Package app wires configuration, storage, logging and metrics into a
// ready lease engine for the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/config"
	"github.com/beesaferoot/leasekeeper/internal/database"
	leasehttp "github.com/beesaferoot/leasekeeper/internal/http"
	"github.com/beesaferoot/leasekeeper/internal/http/handlers"
	"github.com/beesaferoot/leasekeeper/internal/http/middleware"
	"github.com/beesaferoot/leasekeeper/internal/lease"
	"github.com/beesaferoot/leasekeeper/internal/platform/logger"
)

type App struct {
	Cfg      *config.Config
	Log      *logger.Logger
	DB       *gorm.DB
	Registry *prometheus.Registry
	Engine   *lease.Engine
}

// New opens the database described by cfg and builds the engine on top.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := lease.NewEngine(db, log,
		lease.WithTimeout(cfg.OperationTimeout),
		lease.WithNumberAttempts(cfg.NumberMaxAttempts),
		lease.WithMetrics(lease.NewMetrics(reg)),
	)

	log.Debug("app initialised", "driver", cfg.DatabaseDriver, "timeout", cfg.OperationTimeout.String())
	return &App{Cfg: cfg, Log: log, DB: db, Registry: reg, Engine: engine}, nil
}

// Load is New with configuration from .env and the environment.
func Load() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func (a *App) Router() *gin.Engine {
	return leasehttp.NewRouter(leasehttp.RouterConfig{
		ContractHandler: handlers.NewContractHandler(a.Engine),
		Logger:          a.Log.With("component", "HTTP"),
		Metrics:         middleware.NewHTTPMetrics(a.Registry),
		Gatherer:        a.Registry,
	})
}

// Serve runs the HTTP API on cfg.HTTPAddr until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Log.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.Log.Sync()
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
