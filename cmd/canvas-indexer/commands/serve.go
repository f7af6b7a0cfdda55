package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pubky-canvas/indexer/broadcast"
	canvasconfig "github.com/pubky-canvas/indexer/config"
	"github.com/pubky-canvas/indexer/credit"
	"github.com/pubky-canvas/indexer/homeserver"
	"github.com/pubky-canvas/indexer/httpapi"
	"github.com/pubky-canvas/indexer/logger"
	"github.com/pubky-canvas/indexer/store"
	"github.com/pubky-canvas/indexer/watcher"
)

// Exit codes per the external interface contract: 0 clean shutdown, 1 config
// error, 2 store init error, 3 listen-bind error.
const (
	exitOK          = 0
	exitConfigError = 1
	exitStoreError  = 2
	exitListenError = 3
)

// ServeCmd starts the watcher loop and the HTTP API and blocks until a
// shutdown signal is received.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the watcher loop and HTTP API",
	Run:     runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := canvasconfig.LoadFromFile(configPath)
	if err != nil {
		logger.Errorw("failed to load configuration", logger.FieldError, err)
		os.Exit(exitConfigError)
	}

	// Reinitialize with the loaded logging.json/logging.level now that
	// config is available; PersistentPreRunE only set up a bootstrap logger.
	if err := logger.Initialize(cfg.Logging.JSON, cfg.Logging.Level); err != nil {
		logger.Errorw("failed to initialize logger from configuration", logger.FieldError, err)
		os.Exit(exitConfigError)
	}

	db, err := store.OpenWithMigrations(cfg.Database.Path, logger.L())
	if err != nil {
		logger.Errorw("failed to open store", logger.FieldError, err)
		os.Exit(exitStoreError)
	}
	defer db.Close()

	s := store.New(db)
	if err := s.InitMeta(context.Background(), cfg.Canvas.InitialSize); err != nil {
		logger.Errorw("failed to initialize canvas metadata", logger.FieldError, err)
		os.Exit(exitStoreError)
	}

	resolver, err := homeserver.NewStaticResolver(cfg.Resolver.StaticMap)
	if err != nil {
		logger.Errorw("failed to build homeserver resolver", logger.FieldError, err)
		os.Exit(exitConfigError)
	}

	requestTimeout := time.Duration(cfg.Watcher.HomeserverRequestTimeoutMS) * time.Millisecond
	client := homeserver.NewHTTPClient(requestTimeout, 5, 10)
	b := broadcast.New(broadcast.DefaultBufferSize)

	creditParams := credit.Params{MaxCredits: cfg.Canvas.MaxCredits, RegenInterval: int64(cfg.Canvas.CreditRegenSeconds)}

	w := watcher.New(s, client, b, watcherConfigFromFile(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutMS) * time.Millisecond
	api := httpapi.New(s, b, resolver, creditParams, shutdownTimeout)

	var configWatcher *canvasconfig.Watcher
	if cfg.HotReloadEnabled() {
		configWatcher = startConfigWatcher(configPath, w)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- api.ListenAndServe(cfg.Server.Listen)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			logger.Errorw("http api failed to start", logger.FieldError, err)
			w.Stop()
			b.Shutdown()
			os.Exit(exitListenError)
		}

	case <-sigChan:
		logger.Infow("shutdown signal received, draining")

		w.Stop()
		b.Shutdown()

		if configWatcher != nil {
			if err := configWatcher.Close(); err != nil {
				logger.Warnw("config watcher close reported an error", logger.FieldError, err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("http shutdown reported an error", logger.FieldError, err)
		}
	}

	logger.Infow("canvas-indexer stopped cleanly")
	os.Exit(exitOK)
}

// watcherConfigFromFile builds the watcher's tunables from the loaded
// configuration. Shared by the initial construction and every hot-reload.
func watcherConfigFromFile(cfg canvasconfig.Config) watcher.Config {
	return watcher.Config{
		PollInterval:      time.Duration(cfg.Watcher.PollIntervalMS) * time.Millisecond,
		EventsLimit:       cfg.Watcher.EventsLimit,
		CreditParams:      credit.Params{MaxCredits: cfg.Canvas.MaxCredits, RegenInterval: int64(cfg.Canvas.CreditRegenSeconds)},
		StoreWriteTimeout: time.Duration(cfg.Watcher.StoreWriteTimeoutMS) * time.Millisecond,
	}
}

// startConfigWatcher hot-reloads the watcher's tunables: the watcher.* keys
// plus canvas.max_credits and canvas.credit_regen_seconds, which reach the
// watcher's credit check (the HTTP API keeps the credit parameters it was
// started with). Identity and storage settings take effect at process start
// and are not reloadable. Each reload pushes the new tunables into the live
// watcher via SetConfig.
func startConfigWatcher(path string, w *watcher.Watcher) *canvasconfig.Watcher {
	if path == "" {
		return nil
	}

	cw, err := canvasconfig.NewWatcher(path)
	if err != nil {
		logger.Warnw("failed to start config watcher", logger.FieldError, err)
		return nil
	}

	cw.OnReload(func(cfg canvasconfig.Config) {
		w.SetConfig(watcherConfigFromFile(cfg))
		logger.Infow("watcher configuration reloaded", "poll_interval_ms", cfg.Watcher.PollIntervalMS)
	})

	return cw
}
