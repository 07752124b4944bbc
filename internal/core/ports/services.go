package ports

import (
	"context"
	"errors"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// ErrNoMatch is returned by a Classifier when no known place lies within its
// search radius.
var ErrNoMatch = errors.New("no place within search radius")

// ErrCacheMiss is returned by a CacheService when the key is absent, so
// callers can tell a miss from a transport failure.
var ErrCacheMiss = errors.New("cache miss")

// Classifier assigns the nearest known place to a coordinate. It is the
// offline fallback when the boundary store has no answer.
type Classifier interface {
	Classify(ctx context.Context, coord domain.Coordinate) (*domain.Classification, error)
}

// CountryCodes translates between country names and ISO 3166-1 alpha-2 codes.
type CountryCodes interface {
	// CodeForName resolves a country name to its alpha-2 code, tolerating
	// OSM spelling variants.
	CodeForName(name string) (string, bool)
	// NameForCode returns the English name for an alpha-2 code.
	NameForCode(code string) (string, bool)
}

// EventPublisher announces pipeline events to a message broker. Publishing is
// best-effort: resolution never depends on the broker being up.
type EventPublisher interface {
	PublishProgress(ctx context.Context, progress domain.PipelineProgress) error
	PublishCheckpointSaved(ctx context.Context, saved domain.CheckpointSaved) error
}

// CacheService provides the shared resolution cache tier.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
