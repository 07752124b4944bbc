package http

import (
	natsadapter "github.com/openschoolmap/georesolver/internal/adapters/nats"
	"github.com/openschoolmap/georesolver/internal/adapters/postgres"
	"github.com/openschoolmap/georesolver/internal/adapters/valkey"
	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Boundaries,
// Classifier, Records, NATS, DB, and Cache may each be nil; handlers that
// depend on an absent piece report it instead of panicking.
type Dependencies struct {
	Resolver   *usecases.ResolverService
	Boundaries ports.BoundaryRepository
	Classifier ports.Classifier
	Records    domain.Checkpoint
	NATS       *natsadapter.Publisher
	DB         *postgres.DB
	Cache      *valkey.Cache
}
