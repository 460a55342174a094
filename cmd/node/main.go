package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uhyunpark/hyperswap/params"
	"github.com/uhyunpark/hyperswap/pkg/api"
	"github.com/uhyunpark/hyperswap/pkg/app/swap"
	"github.com/uhyunpark/hyperswap/pkg/storage"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized",
		"log_file", cfg.Node.LogFile,
		"network", cfg.Exchange.Network,
		"chain_id", cfg.Exchange.ChainID.String())

	// ---- State: pebble backend, WAL replayed on top ----
	if err := os.MkdirAll(filepath.Dir(cfg.Node.WALPath), 0o755); err != nil {
		sugar.Fatalw("wal_dir_failed", "err", err)
	}
	store, err := storage.NewPebbleStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	replayed, err := storage.ReplayWAL(cfg.Node.WALPath, store)
	if err != nil {
		sugar.Fatalw("wal_replay_failed", "err", err)
	}
	sugar.Infow("wal_replayed", "records", replayed)

	wal, err := storage.NewFileWAL(cfg.Node.WALPath)
	if err != nil {
		sugar.Fatalw("wal_open_failed", "err", err)
	}
	defer wal.Close()

	// ---- App: Wyvern-style exchange ----
	app := swap.NewApp(cfg, store, wal, util.RealClock{}, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Genesis(ctx); err != nil {
		sugar.Fatalw("genesis_failed", "err", err)
	}
	d := app.Deployment()
	sugar.Infow("exchange_ready",
		"exchange", d.Exchange.Hex(),
		"registry", d.Registry.Hex(),
		"atomicizer", d.Atomicizer.Hex(),
		"relayer", app.Relayer().Hex())

	// ---- API Server ----
	apiServer := api.NewServer(app, cfg.Node.AllowedOrigins, sugar)

	// Hook app to API server: stream every committed match
	app.OnMatch = apiServer.Hub().BroadcastMatch

	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// ---- Trade Feeder (optional) ----
	// Enable with: ENABLE_FEEDER=true (development networks only)
	if os.Getenv("ENABLE_FEEDER") == "true" {
		feeder, err := swap.NewFeeder(app, swap.DefaultFeederConfig(), sugar)
		if err != nil {
			sugar.Fatalw("feeder_init_failed", "err", err)
		}
		if err := feeder.Setup(ctx); err != nil {
			sugar.Fatalw("feeder_setup_failed", "err", err)
		}
		cancelFeeder := swap.StartFeeder(ctx, feeder)
		defer cancelFeeder()
	} else {
		sugar.Info("feeder_disabled")
	}

	<-ctx.Done()
	sugar.Info("node_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}
