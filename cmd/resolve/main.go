package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/openschoolmap/georesolver/internal/adapters/checkpoint"
	"github.com/openschoolmap/georesolver/internal/adapters/geonames"
	"github.com/openschoolmap/georesolver/internal/adapters/input"
	natsadapter "github.com/openschoolmap/georesolver/internal/adapters/nats"
	"github.com/openschoolmap/georesolver/internal/adapters/postgres"
	"github.com/openschoolmap/georesolver/internal/adapters/valkey"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/core/usecases"
	"github.com/openschoolmap/georesolver/internal/pkg/config"
	"github.com/openschoolmap/georesolver/internal/pkg/country"
	"github.com/openschoolmap/georesolver/internal/pkg/geocache"
	"github.com/openschoolmap/georesolver/internal/pkg/logging"
)

func main() {
	flags := pflag.NewFlagSet("resolve", pflag.ExitOnError)
	inputPath := flags.String("input", "", "survey export to resolve (overrides input.path)")
	checkpointPath := flags.String("checkpoint", "", "checkpoint file (overrides checkpoint.path)")
	workers := flags.Int("workers", 0, "resolution workers, 0 means one per CPU minus one")
	batchSize := flags.Int("batch-size", 0, "records buffered between the feeder and the workers")
	saveEvery := flags.Int("save-every", 0, "save the checkpoint after this many new records")
	saveInterval := flags.Duration("save-interval", 0, "save at least this often while work is pending")
	classifierData := flags.String("classifier-data", "", "GeoNames extract for the offline fallback (overrides classifier.dataset)")
	noDB := flags.Bool("no-db", false, "skip the boundary store and resolve with the classifier only")
	debug := flags.Bool("debug", false, "enable debug logging")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load("georesolver-resolve")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if flags.Changed("input") {
		cfg.Input.Path = *inputPath
	}
	if flags.Changed("checkpoint") {
		cfg.Checkpoint.Path = *checkpointPath
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = *workers
	}
	if flags.Changed("batch-size") {
		cfg.Pipeline.BatchSize = *batchSize
	}
	if flags.Changed("save-every") {
		cfg.Pipeline.SaveEvery = *saveEvery
	}
	if flags.Changed("save-interval") {
		cfg.Pipeline.SaveIntervalSeconds = int(saveInterval.Seconds())
	}
	if flags.Changed("classifier-data") {
		cfg.Classifier.Dataset = *classifierData
	}

	// Progress goes to stderr; stdout stays clean for the final summary.
	level := cfg.Log.Level
	if *debug {
		level = "debug"
	}
	logging.Setup(os.Stderr, level, cfg.Log.Format)

	if cfg.Input.Path == "" {
		log.Fatal("no input: pass --input or set input.path")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Boundary store
	var db *postgres.DB
	if !*noDB {
		db, err = postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("boundary store unavailable, continuing without it", "error", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	// Offline fallback classifier
	var cls *geonames.Classifier
	if cfg.Classifier.Dataset != "" {
		cls, err = geonames.Load(cfg.Classifier.Dataset, cfg.Classifier.MaxRadiusKm)
		if err != nil {
			slog.Warn("classifier unavailable", "path", cfg.Classifier.Dataset, "error", err)
			cls = nil
		} else {
			slog.Info("classifier loaded", "places", cls.Size())
		}
	}

	if db == nil && cls == nil {
		log.Fatal("neither the boundary store nor a classifier is available, nothing to resolve with")
	}

	// Shared cache
	var cache *valkey.Cache
	if cfg.Valkey.Addr != "" {
		cache, err = valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	// Progress events
	var nc *natsadapter.Publisher
	if cfg.NATS.URL != "" {
		nc, err = natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
			nc = nil
		} else {
			defer nc.Close()
		}
	}

	// A nil concrete pointer must not become a non-nil interface.
	var boundaries ports.BoundaryRepository
	if db != nil {
		boundaries = postgres.NewBoundaryRepo(db)
	}
	var clsPort ports.Classifier
	if cls != nil {
		clsPort = cls
	}
	var shared ports.CacheService
	if cache != nil {
		shared = cache
	}
	var events ports.EventPublisher
	if nc != nil {
		events = nc
	}
	var memo geocache.Cache
	if cfg.Resolver.CacheSize > 0 {
		memo = geocache.NewLRU(cfg.Resolver.CacheSize)
	}

	resolver := usecases.NewResolverService(
		boundaries, clsPort, country.NewTranslator(), memo, shared,
	).WithSharedTTL(cfg.Resolver.SharedTTLSeconds)

	store := checkpoint.NewFileStore(cfg.Checkpoint.Path)
	pipeline := usecases.NewPipelineService(resolver, store, events, usecases.PipelineOptions{
		Workers:      cfg.Pipeline.Workers,
		BatchSize:    cfg.Pipeline.BatchSize,
		SaveEvery:    cfg.Pipeline.SaveEvery,
		SaveInterval: time.Duration(cfg.Pipeline.SaveIntervalSeconds) * time.Second,
	})

	src, err := input.Open(cfg.Input.Path)
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer src.Close()

	// An interrupt cancels the run; the pipeline saves what it has and
	// returns cleanly, so the next invocation resumes.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		slog.Info("shutdown signal received, saving and exiting", "signal", sig.String())
		cancel()
	}()

	progress, err := pipeline.Run(ctx, src)
	if err != nil {
		log.Fatalf("final checkpoint save failed: %v", err)
	}

	fmt.Printf("resolved %d new records (%d skipped), %d total in %s\n",
		progress.Resolved, progress.Skipped, progress.Records, store.Path())
}
