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

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/openschoolmap/georesolver/internal/adapters/checkpoint"
	"github.com/openschoolmap/georesolver/internal/adapters/geonames"
	"github.com/openschoolmap/georesolver/internal/adapters/http"
	natsadapter "github.com/openschoolmap/georesolver/internal/adapters/nats"
	"github.com/openschoolmap/georesolver/internal/adapters/postgres"
	"github.com/openschoolmap/georesolver/internal/adapters/valkey"
	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/core/usecases"
	"github.com/openschoolmap/georesolver/internal/pkg/config"
	"github.com/openschoolmap/georesolver/internal/pkg/country"
	"github.com/openschoolmap/georesolver/internal/pkg/geocache"
	"github.com/openschoolmap/georesolver/internal/pkg/logging"
	"github.com/openschoolmap/georesolver/internal/pkg/metrics"
	"github.com/openschoolmap/georesolver/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("georesolver-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Boundary store
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

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

	// NATS
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

	// Checkpoint records for the browse endpoints
	store := checkpoint.NewFileStore(cfg.Checkpoint.Path)
	records, err := store.Load(ctx)
	if err != nil {
		slog.Warn("checkpoint unreadable", "path", store.Path(), "error", err)
		records = domain.Checkpoint{}
	}

	boundaryRepo := postgres.NewBoundaryRepo(db)

	// A nil concrete pointer must not become a non-nil interface.
	var clsPort ports.Classifier
	if cls != nil {
		clsPort = cls
	}
	var shared ports.CacheService
	if cache != nil {
		shared = cache
	}
	var memo geocache.Cache
	if cfg.Resolver.CacheSize > 0 {
		memo = geocache.NewLRU(cfg.Resolver.CacheSize)
	}

	resolver := usecases.NewResolverService(
		boundaryRepo, clsPort, country.NewTranslator(), memo, shared,
	).WithSharedTTL(cfg.Resolver.SharedTTLSeconds)

	deps := &http.Dependencies{
		Resolver:   resolver,
		Boundaries: boundaryRepo,
		Classifier: clsPort,
		Records:    records,
		NATS:       nc,
		DB:         db,
		Cache:      cache,
	}

	// Pool gauges for the /metrics endpoint
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			}
		}
	}()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "GeoResolver API",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.openschoolmap.org",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
