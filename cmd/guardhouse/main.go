package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfeltz/guardhouse/internal/actuator"
	"github.com/mfeltz/guardhouse/internal/config"
	dbpkg "github.com/mfeltz/guardhouse/internal/db"
	"github.com/mfeltz/guardhouse/internal/guardhouse/policy"
	"github.com/mfeltz/guardhouse/internal/guardhouse/service"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store/sqlite"
	"github.com/mfeltz/guardhouse/internal/httpapi"
	"github.com/mfeltz/guardhouse/internal/upstream"
)

func main() {
	logger := log.New(os.Stdout, "guardhouse ", log.LstdFlags|log.LUTC)

	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Time-of-day policy table. Malformed policy is a startup failure, never
	// a runtime fallback.
	var hours policy.HoursTable
	if cfg.PolicyFile != "" {
		hours, err = policy.LoadHours(cfg.PolicyFile)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: dual-connection SQLite plus the single-writer worker every
	// mutation goes through.
	db, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := dbpkg.Migrate(db.Writer); err != nil {
		return err
	}
	if cfg.Env == "dev" {
		if err := dbpkg.SeedDev(ctx, db.Writer); err != nil {
			return err
		}
	}

	writer := dbpkg.NewWorker(db.Writer)
	defer writer.Close()

	credStore := sqlite.NewCredentialStore(db, writer)
	gateStore := sqlite.NewGateStore(db, writer)
	decisionStore := sqlite.NewDecisionStore(db, writer)
	heartbeatStore := sqlite.NewHeartbeatStore(db, writer)
	syncStateStore := sqlite.NewSyncStateStore(db, writer)

	health := service.NewHealthTracker(cfg.GateOfflineAfter)

	registry := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamToken, cfg.UpstreamTimeout)
	syncSvc := service.NewSyncService(registry, credStore, decisionStore, syncStateStore, service.SyncConfig{
		PullInterval:  cfg.PullInterval,
		PushInterval:  cfg.PushInterval,
		PushBatchSize: cfg.PushBatchSize,
		CallTimeout:   cfg.UpstreamTimeout,
	}, logger)
	if cfg.UpstreamURL != "" {
		syncSvc.Start(ctx)
		defer syncSvc.Stop()
	} else {
		logger.Printf("no upstream configured, sync disabled (dev only)")
	}

	backlog := service.NewDecisionBacklog(decisionStore, logger)
	backlog.Start(ctx)
	defer backlog.Stop()

	validationSvc := service.NewValidationService(
		gateStore, credStore, decisionStore, backlog,
		&actuator.LogActuator{Logger: logger},
		health, syncSvc, hours,
		service.ValidationConfig{
			OfflineGrace:    cfg.OfflineGrace,
			DecisionCeiling: cfg.DecisionCeiling,
			ActuatorOpenFor: cfg.ActuatorOpenFor,
		},
		logger,
	)

	heartbeatSvc := service.NewHeartbeatService(heartbeatStore, gateStore, health)

	pruner := service.NewHeartbeatPruner(heartbeatStore, service.PrunerConfig{
		RetentionDays: cfg.HeartbeatRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:            logger,
		Addr:              cfg.HTTPAddr,
		ValidationService: validationSvc,
		HeartbeatService:  heartbeatSvc,
		Health:            health,
		Backlog:           backlog,
		Upstream:          syncSvc,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Best effort: drain any decisions still waiting on persistence.
	if backlog.Pending() > 0 {
		if err := backlog.Flush(shutdownCtx); err != nil {
			logger.Printf("shutdown: %d decisions left in backlog: %v", backlog.Pending(), err)
		}
	}

	return nil
}
