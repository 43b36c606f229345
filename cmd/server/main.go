package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thraizz/battlescene/internal/anim"
	"github.com/thraizz/battlescene/internal/compose"
	"github.com/thraizz/battlescene/internal/config"
	"github.com/thraizz/battlescene/internal/logpanel"
	"github.com/thraizz/battlescene/internal/prefs"
	"github.com/thraizz/battlescene/internal/replay"
	"github.com/thraizz/battlescene/internal/transport/feed"
	"github.com/thraizz/battlescene/internal/transport/ws"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting battlescene",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	store, err := prefs.Open(ctx, cfg.Preferences, logger)
	if err != nil {
		logger.Fatal("failed to open preference store", zap.Error(err))
	}
	defer store.Close()

	panel := logpanel.Restore(ctx, store, cfg.Preferences.Key, logger)
	seq := anim.NewSequencer(logger)
	composer := compose.NewComposer(logger, cfg.Compose(), seq, panel)
	bus := composer.Bus()

	persist := logpanel.Persister(store, cfg.Preferences.Key, cfg.Preferences.Timeout, logger)
	bus.SubscribeTyped(compose.NotifyPreferencesChanged, func(n compose.Notification) {
		if n.Preferences != nil {
			persist(*n.Preferences)
		}
	})

	go func() {
		if err := seq.Run(ctx, cfg.Animation.TickInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("animation driver stopped", zap.Error(err))
		}
	}()

	hub := ws.NewHub(logger, composer, ws.Config{
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
	})
	hub.Attach(bus)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, hub)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting renderer websocket server",
			zap.String("address", cfg.Server.Address),
			zap.String("path", cfg.Server.Path),
		)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("websocket server error", zap.Error(serveErr))
		}
	}()

	var recorder *replay.Recorder
	if cfg.Replay.Enabled {
		recorder = replay.NewRecorder(logger, cfg.Replay.Directory)
		recorder.Start("scene-" + time.Now().UTC().Format("20060102-150405"))
	}

	if cfg.Server.FeedURL != "" {
		client := feed.NewClient(logger, cfg.Server.FeedURL, composer)
		if recorder != nil {
			client.SetRecorder(recorder)
		}
		client.Attach(bus)
		go func() {
			if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("battle feed stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("no feed_url configured; waiting for renderers only")
	}

	logger.Info("battlescene initialized",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address),
		zap.String("preferences_backend", cfg.Preferences.Backend),
		zap.Bool("recording", recorder != nil),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	composer.Close()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown", zap.Error(err))
	}

	if recorder != nil {
		if _, err := recorder.Stop(); err != nil {
			logger.Error("failed to save recording", zap.Error(err))
		}
	}

	logger.Info("battlescene stopped")
}

func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
