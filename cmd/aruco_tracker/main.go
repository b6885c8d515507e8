package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/ctralie/aruco2-fast/internal/api"
	"github.com/ctralie/aruco2-fast/internal/cache"
	"github.com/ctralie/aruco2-fast/internal/config"
	"github.com/ctralie/aruco2-fast/internal/dispatcher"
	"github.com/ctralie/aruco2-fast/internal/influx"
	"github.com/ctralie/aruco2-fast/internal/ingest"
	"github.com/ctralie/aruco2-fast/internal/logging"
	"github.com/ctralie/aruco2-fast/internal/monitor"
	intotel "github.com/ctralie/aruco2-fast/internal/otel"
	"github.com/ctralie/aruco2-fast/internal/parser"
	"github.com/ctralie/aruco2-fast/internal/session"
)

// TrackerVersion can be set at build time via ldflags.
var TrackerVersion = "0.1.0"

const serviceName = "aruco_tracker"

func main() {
	configDir := flag.String("config", ".", "directory containing aruco_tracker.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	startTime := time.Now()

	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "info", nil)
	logger := logManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config")
	}

	// Log file
	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		_ = os.MkdirAll(logsDir, 0755)
	}
	logFilePath := logging.LogFilePath(logsDir, serviceName, startTime)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Error("Failed to create/open log file!", "error", err, "path", logFilePath)
	}

	// Optional Graylog output combined with the log file.
	var logSink io.Writer
	if logFile != nil {
		logSink = logFile
	}
	if viper.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(viper.GetString("graylog.address"))
		if err != nil {
			logger.Error("Failed to connect Graylog writer", "error", err)
		} else if logSink != nil {
			logSink = io.MultiWriter(logSink, gw)
		} else {
			logSink = gw
		}
	}

	// OTel provider
	var otelProvider *intotel.Provider
	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		otelProvider, err = intotel.New(intotel.Config{
			Enabled:      otelCfg.Enabled,
			ServiceName:  otelCfg.ServiceName,
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    logSink,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = otelProvider.LoggerProvider()
			logger.Info("OTel provider initialized", "file", logFilePath)
		}
	}

	// Shared state
	sessionCtx := session.NewContext()
	poseCache := cache.NewPoseCache()
	offsetCache := cache.NewOffsetCache()

	// Re-setup logging with file output, OTel, and session context attrs.
	logManager.Context = func() []slog.Attr {
		s := sessionCtx.Get()
		return []slog.Attr{
			slog.String("sessionName", s.Name),
			slog.Uint64("sessionId", uint64(s.ID)),
		}
	}
	logManager.Setup(logSink, viper.GetString("logLevel"), otelLogProvider)
	logger = logManager.Logger()
	logger.Info("Logging to file", "path", logFilePath)

	// Dispatcher with its zerolog adapter writing to the same sink.
	zl := zerolog.New(logSink).With().Timestamp().Logger()
	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zl))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// InfluxDB (optional)
	var influxManager *influx.Manager
	if viper.GetBool("influx.enabled") {
		backupPath := logging.LogFilePath(logsDir, serviceName+"_influx_backup", startTime) + ".gz"
		influxManager = influx.NewManager(zl, backupPath)
		if err := influxManager.Connect(); err != nil {
			logger.Warn("InfluxDB not available", "error", err)
			influxManager = nil
		}
	}

	// Storage backend + worker pipeline
	backend, workerManager, err := initStorage(initStorageDeps{
		LogManager:  logManager,
		SessionCtx:  sessionCtx,
		PoseCache:   poseCache,
		OffsetCache: offsetCache,
		Parser:      parser.NewParser(logger, TrackerVersion),
		Dispatcher:  eventDispatcher,
		DBLogger:    zl,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer backend.Close()

	// Monitor
	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager:    logManager,
		SessionCtx:    sessionCtx,
		WorkerManager: workerManager,
		Backend:       backend,
		PoseCache:     poseCache,
		Influx:        influxManager,
		StatusDir:     logsDir,
	})
	if err := monitorService.Start(); err != nil {
		logger.Error("Failed to start monitor", "error", err)
	}

	// Viewer frontend reachability (informational only)
	go func() {
		client := api.New(viper.GetString("api.serverUrl"), viper.GetString("api.apiKey"))
		if err := client.Healthcheck(); err != nil {
			logger.Info("Viewer frontend is offline")
		} else {
			logger.Info("Viewer frontend is online")
		}
	}()

	// Ingest server
	server := ingest.New(config.GetIngestConfig(), eventDispatcher, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Run until signal or server failure.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("Ingest server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ingest server shutdown error", "error", err)
	}
	monitorService.Stop()

	// End a session the client never closed.
	if sessionCtx.Active() {
		sessionCtx.End()
		if err := backend.EndSession(); err != nil {
			logger.Error("Error ending session during shutdown", "error", err)
		} else {
			uploadExport(backend, logger)
		}
	}

	if influxManager != nil {
		influxManager.Close()
	}
	if err := logManager.Flush(shutdownCtx); err != nil {
		logger.Error("Error flushing logs", "error", err)
	}
	if otelProvider != nil {
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down OTel provider", "error", err)
		}
	}
	return nil
}
