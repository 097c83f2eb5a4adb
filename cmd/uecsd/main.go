// uecsd receives UECS CCM broadcasts and stores them as time series.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/y-ookuma/uecs2influxdbV2/internal/backfill"
	"github.com/y-ookuma/uecs2influxdbV2/internal/listener"
	"github.com/y-ookuma/uecs2influxdbV2/internal/loader"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/pipeline"
	"github.com/y-ookuma/uecs2influxdbV2/internal/registry"
	"github.com/y-ookuma/uecs2influxdbV2/internal/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "uecsd.yaml", "config file path")
	listen := flag.String("listen", "", "UDP listen address (overrides config)")
	dataDir := flag.String("data-dir", "", "store data directory (overrides config)")
	registryPath := flag.String("registry", "", "signal policy descriptor path (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	noBackfill := flag.Bool("no-backfill", false, "disable the aggregate backfill scheduler")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Printf("uecsd %s starting...", Version)

	// Load config
	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config file found, using defaults")
			cfg = loader.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if *registryPath != "" {
		cfg.Registry = *registryPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.Format = "json"
	}
	if *noBackfill {
		cfg.Backfill.Enabled = false
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format == "json")

	// =========================================================================
	// Load Signal Policy Registry
	// =========================================================================

	reg, err := registry.Load(cfg.Registry)
	if err != nil {
		log.Fatalf("Load registry: %v", err)
	}
	if reg.Len() == 0 {
		log.Printf("Warning: registry %s has no signals, all traffic will be dropped", cfg.Registry)
	}

	// =========================================================================
	// Initialize Store (Parquet + WAL + DuckDB)
	// =========================================================================

	log.Printf("Initializing store: %s", cfg.Store.DataDir)

	storeCfg := storage.DefaultConfig()
	storeCfg.DataDir = cfg.Store.DataDir
	storeCfg.BatchSize = cfg.Store.BatchSize
	storeCfg.FlushInterval = cfg.Store.FlushInterval.Duration()
	storeCfg.FlushJitter = cfg.Store.FlushJitter.Duration()
	storeCfg.RetryInterval = cfg.Store.RetryInterval.Duration()
	storeCfg.RetryMultiplier = cfg.Store.RetryMultiplier
	storeCfg.MaxRetries = cfg.Store.MaxRetries
	storeCfg.MaxRetryDelay = cfg.Store.MaxRetryDelay.Duration()
	storeCfg.WALMaxSegmentSize = int64(cfg.Store.WALMaxSegmentSize)
	storeCfg.Compression = cfg.Store.Compression
	storeCfg.Percentiles = cfg.Store.Percentiles

	store, err := storage.New(storeCfg)
	if err != nil {
		log.Fatalf("Create store: %v", err)
	}
	if err := store.Start(); err != nil {
		log.Fatalf("Start store: %v", err)
	}

	// =========================================================================
	// Pipeline and Listener
	// =========================================================================

	dispatcher := pipeline.NewDispatcher(&pipeline.Config{
		Workers:       cfg.Dispatch.Workers,
		QueueSize:     cfg.Dispatch.QueueSize,
		Timeout:       cfg.Dispatch.Timeout.Duration(),
		DrainTimeout:  cfg.Dispatch.DrainTimeout.Duration(),
		DeltaLookback: cfg.DeltaLookback.Duration(),
	}, reg, store)
	dispatcher.Start()

	lis, err := listener.New(&listener.Config{
		Address:        cfg.Listen,
		ReadBufferSize: cfg.ReadBufferSize,
	}, dispatcher)
	if err != nil {
		log.Fatalf("Bind listener: %v", err)
	}

	// =========================================================================
	// Backfill Scheduler
	// =========================================================================

	var filler *backfill.Scheduler
	if cfg.Backfill.Enabled {
		filler = backfill.New(&backfill.Config{
			Interval:     cfg.Backfill.Interval.Duration(),
			Workers:      cfg.Backfill.Workers,
			Lookback:     cfg.Backfill.Lookback.Duration(),
			HoldbackDays: cfg.Backfill.HoldbackDays,
		}, store, reg)
		filler.Start()
	} else {
		log.Printf("Backfill disabled")
	}

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("Shutting down...")

		// Stop the listener first (stop accepting new datagrams)
		cancel()
	}()

	// =========================================================================
	// Run
	// =========================================================================

	log.Printf("Listening on %s (%d signals registered)", cfg.Listen, reg.Len())

	runErr := lis.Run(ctx)

	// Drain in dependency order: in-flight datagrams, then the backfill
	// pass, then flush the store.
	dispatcher.Stop()
	if filler != nil {
		filler.Stop()
	}
	if err := store.Stop(); err != nil {
		log.Printf("Warning: store stop: %v", err)
	}

	if runErr != nil {
		log.Fatalf("Listener error: %v", runErr)
	}
	log.Println("uecsd stopped")
}
