package main

import (
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ctralie/aruco2-fast/internal/api"
	"github.com/ctralie/aruco2-fast/internal/cache"
	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/parser"
	"github.com/ctralie/aruco2-fast/internal/session"
	"github.com/ctralie/aruco2-fast/internal/solver"
	"github.com/ctralie/aruco2-fast/internal/storage"
	"github.com/ctralie/aruco2-fast/internal/worker"
)

type initStorageDeps struct {
	LogManager  *logging.SlogManager
	SessionCtx  *session.Context
	PoseCache   *cache.PoseCache
	OffsetCache *cache.OffsetCache
	Parser      parser.Service
	Dispatcher  *dispatcher.Dispatcher
	DBLogger    zerolog.Logger
}

// initStorage builds the configured storage backend and the worker pipeline
// on top of it, and registers the pipeline's dispatcher handlers.
func initStorage(deps initStorageDeps) (storage.Backend, *worker.Manager, error) {
	logger := deps.LogManager.Logger()

	cfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(cfg, storage.Dependencies{
		LogManager: deps.LogManager,
		DBLogger:   deps.DBLogger,
		Tag:        viper.GetString("defaultTag"),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to init %s backend: %w", cfg.Type, err)
	}
	logger.Info("Storage backend ready", "type", cfg.Type)

	workerManager := worker.NewManager(worker.Dependencies{
		OffsetCache:    deps.OffsetCache,
		PoseCache:      deps.PoseCache,
		LogManager:     deps.LogManager,
		ParserService:  deps.Parser,
		SessionCtx:     deps.SessionCtx,
		Solver:         solver.NewHomography(viper.GetFloat64("solver.focalLengthPx")),
		FusionDefaults: config.GetFusionConfig(),
		OnSessionEnd: func() {
			uploadExport(backend, logger)
		},
	}, backend)
	workerManager.RegisterHandlers(deps.Dispatcher)

	return backend, workerManager, nil
}

// uploadExport pushes the last exported session file to the viewer frontend,
// for backends that produce one.
func uploadExport(backend storage.Backend, logger *slog.Logger) {
	up, ok := backend.(storage.Uploadable)
	if !ok {
		return
	}
	serverURL := viper.GetString("api.serverUrl")
	if serverURL == "" {
		return
	}

	path := up.GetExportedFilePath()
	if path == "" {
		logger.Warn("No exported file to upload")
		return
	}

	client := api.New(serverURL, viper.GetString("api.apiKey"))
	if err := client.Upload(path, up.GetExportMetadata()); err != nil {
		logger.Error("Failed to upload session export", "error", err, "path", path)
		return
	}
	logger.Info("Uploaded session export", "path", path)
}
