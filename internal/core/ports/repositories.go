package ports

import (
	"context"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// BoundaryRepository queries the administrative polygon store.
type BoundaryRepository interface {
	// FindContaining returns every boundary whose polygon contains the point,
	// ordered by ascending admin level. An empty slice is a valid answer.
	FindContaining(ctx context.Context, coord domain.Coordinate) ([]domain.BoundaryMatch, error)
}

// CheckpointStore persists pipeline results between runs.
type CheckpointStore interface {
	// Load returns the current checkpoint. A store with no prior checkpoint
	// returns an empty one, not an error.
	Load(ctx context.Context) (domain.Checkpoint, error)
	// Save durably replaces the checkpoint. Partially written state must
	// never become visible to a later Load.
	Save(ctx context.Context, cp domain.Checkpoint) error
	// Path identifies the store's location for logs and events.
	Path() string
}

// RecordSource streams input records. Next returns io.EOF when the stream is
// exhausted.
type RecordSource interface {
	Next() (*domain.InputRecord, error)
	Close() error
}
