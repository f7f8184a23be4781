// Package main is the entry point for the quantfarm inference service. It
// wires the data ingestion pipeline, the quantum backend adapter, the three
// hybrid models, background jobs and the HTTP API, then runs until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/agrilab/quantfarm/internal/clientdata"
	"github.com/agrilab/quantfarm/internal/collectors/market"
	"github.com/agrilab/quantfarm/internal/collectors/soil"
	"github.com/agrilab/quantfarm/internal/collectors/weather"
	"github.com/agrilab/quantfarm/internal/config"
	"github.com/agrilab/quantfarm/internal/database"
	"github.com/agrilab/quantfarm/internal/events"
	"github.com/agrilab/quantfarm/internal/ingest"
	"github.com/agrilab/quantfarm/internal/jobs"
	"github.com/agrilab/quantfarm/internal/models"
	"github.com/agrilab/quantfarm/internal/optimizer"
	"github.com/agrilab/quantfarm/internal/quantum/backend"
	"github.com/agrilab/quantfarm/internal/quantum/circuit"
	"github.com/agrilab/quantfarm/internal/reliability"
	"github.com/agrilab/quantfarm/internal/scheduler"
	"github.com/agrilab/quantfarm/internal/server"
	"github.com/agrilab/quantfarm/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().
		Str("backend", string(cfg.Quantum.Backend)).
		Int("qubits", cfg.Quantum.Qubits).
		Int("depth", cfg.Quantum.Depth).
		Msg("Starting quantfarm")

	bus := events.NewBus(log)

	// Cache database for collector data.
	cacheDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "client_data.db"),
		Name: "client_data",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	cache := clientdata.NewRepository(cacheDB.Conn())
	if err := cache.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize cache schema")
	}

	// Ingestion pipeline: collectors behind validation, caching, rate limits.
	ingestSvc := ingest.NewService(
		cache,
		weather.NewClient(cfg.OpenWeatherAPIKey, log),
		market.NewClient(cfg.AlphaVantageAPIKey, log),
		soil.NewClient(log),
		bus,
		log,
	)

	// Quantum execution backend with simulator degradation.
	adapter := backend.NewAdapter(backend.AdapterConfig{
		Kind:      cfg.Quantum.Backend,
		Seed:      cfg.Quantum.Seed,
		RemoteURL: cfg.Quantum.RemoteURL,
		Timeout:   30 * time.Second,
	}, log)

	modelCfg := models.Config{
		Qubits:     cfg.Quantum.Qubits,
		Depth:      cfg.Quantum.Depth,
		Shots:      cfg.Quantum.Shots,
		FeatureMap: circuit.MapAngle,
		Ansatz:     circuit.AnsatzRealAmplitudes,
		Seed:       cfg.Quantum.Seed,
		Optimizer:  optimizer.Options{Method: optimizer.MethodSPSA},
	}

	yield := models.NewYieldRegressor(modelCfg, adapter, bus, log)
	pest := models.NewPestClassifier(modelCfg, adapter, bus, log)
	irrigation, err := models.NewIrrigationModel(modelCfg, cfg.Zones, cfg.BudgetLiters, adapter, bus, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build irrigation model")
	}

	// Snapshots: restore trained state from the previous run if present.
	snapshots, err := reliability.NewSnapshotService(cfg.DataDir, bus, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot service")
	}
	restoreModels(snapshots, log, map[string]models.Stateful{
		yield.Name():      yield,
		irrigation.Name(): irrigation,
		pest.Name():       pest,
	})

	// Background jobs.
	sched := scheduler.New(log)
	jobRegistry := map[string]scheduler.Job{}

	refreshJob := jobs.NewCacheRefreshJob(ingestSvc, cfg.Locations, cfg.Commodities, log)
	cleanupJob := jobs.NewCacheCleanupJob(cache, clientdata.TTLWeather, log)
	pruneJob := reliability.NewSnapshotPruneJob(snapshots, 5, log)

	mustAdd(sched, log, "0 */10 * * * *", refreshJob)
	mustAdd(sched, log, "@hourly", cleanupJob)
	mustAdd(sched, log, "@daily", pruneJob)
	jobRegistry[refreshJob.Name()] = refreshJob
	jobRegistry[cleanupJob.Name()] = cleanupJob
	jobRegistry[pruneJob.Name()] = pruneJob

	// Offsite backups, only when a bucket is configured.
	var backupSvc *reliability.OffsiteBackupService
	if cfg.BackupEnabled() {
		store, err := reliability.NewObjectStore(context.Background(), reliability.ObjectStoreConfig{
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			Bucket:          cfg.Backup.Bucket,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		backupSvc = reliability.NewOffsiteBackupService(store, snapshots, cfg.DataDir, log)
		backupJob := reliability.NewOffsiteBackupJob(backupSvc, cfg.Backup.RetentionDays, log)
		mustAdd(sched, log, "@daily", backupJob)
		jobRegistry[backupJob.Name()] = backupJob
	}

	sched.Start()

	srv := server.New(server.Deps{
		Cfg:        cfg,
		Ingest:     ingestSvc,
		Yield:      yield,
		Irrigation: irrigation,
		Pest:       pest,
		Snapshots:  snapshots,
		Backup:     backupSvc,
		Bus:        bus,
		Scheduler:  sched,
		Jobs:       jobRegistry,
		Log:        log,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	// Wait for shutdown signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	sched.Stop()

	log.Info().Msg("Shutdown complete")
}

// restoreModels applies the newest snapshot per model, logging but not
// failing on problems: a fresh deployment has nothing to restore.
func restoreModels(snapshots *reliability.SnapshotService, log zerolog.Logger, stateful map[string]models.Stateful) {
	for name, m := range stateful {
		restored, err := snapshots.RestoreLatest(m, name)
		if err != nil {
			log.Warn().Err(err).Str("model", name).Msg("Snapshot restore failed")
			continue
		}
		if !restored {
			log.Debug().Str("model", name).Msg("No snapshot to restore")
		}
	}
}

func mustAdd(s *scheduler.Scheduler, log zerolog.Logger, schedule string, job scheduler.Job) {
	if err := s.AddJob(schedule, job); err != nil {
		log.Fatal().Err(err).Str("job", job.Name()).Msg("Failed to register job")
	}
}
