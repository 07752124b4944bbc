package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/openschoolmap/georesolver/internal/adapters/geonames"
	"github.com/openschoolmap/georesolver/internal/adapters/postgres"
	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/core/usecases"
	"github.com/openschoolmap/georesolver/internal/pkg/config"
	"github.com/openschoolmap/georesolver/internal/pkg/country"
	"github.com/openschoolmap/georesolver/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 3 {
		log.Fatal("usage: lookup <lat> <lon>")
	}

	lat, err := strconv.ParseFloat(os.Args[1], 64)
	if err != nil {
		log.Fatalf("lat: %v", err)
	}
	lon, err := strconv.ParseFloat(os.Args[2], 64)
	if err != nil {
		log.Fatalf("lon: %v", err)
	}
	coord := domain.Coordinate{Lat: lat, Lon: lon}
	if !coord.Valid() {
		log.Fatal("coordinates out of range: lat [-90, 90], lon [-180, 180]")
	}

	cfg, err := config.Load("georesolver-lookup")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Only problems reach the terminal; the answer goes to stdout.
	logging.Setup(os.Stderr, "warn", "text")

	ctx := context.Background()

	var boundaries ports.BoundaryRepository
	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		slog.Warn("boundary store unavailable", "error", err)
	} else {
		defer db.Close()
		boundaries = postgres.NewBoundaryRepo(db)
	}

	var clsPort ports.Classifier
	if cfg.Classifier.Dataset != "" {
		cls, err := geonames.Load(cfg.Classifier.Dataset, cfg.Classifier.MaxRadiusKm)
		if err != nil {
			slog.Warn("classifier unavailable", "path", cfg.Classifier.Dataset, "error", err)
		} else {
			clsPort = cls
		}
	}

	if boundaries == nil && clsPort == nil {
		log.Fatal("neither the boundary store nor a classifier is available")
	}

	resolver := usecases.NewResolverService(boundaries, clsPort, country.NewTranslator(), nil, nil)
	addr := resolver.Resolve(ctx, coord)

	out, err := json.MarshalIndent(struct {
		Latitude  float64                `json:"latitude"`
		Longitude float64                `json:"longitude"`
		Address   domain.ResolvedAddress `json:"address"`
	}{coord.Lat, coord.Lon, addr}, "", "  ")
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Println(string(out))
}
