package postgres

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// BoundaryRepo implements ports.BoundaryRepository against a PostGIS
// boundaries table of OSM administrative polygons.
type BoundaryRepo struct {
	db *DB
}

// NewBoundaryRepo creates a new BoundaryRepo.
func NewBoundaryRepo(db *DB) *BoundaryRepo {
	return &BoundaryRepo{db: db}
}

// FindContaining returns every administrative polygon containing the point,
// ordered by ascending admin level. The point is built longitude-first, as
// PostGIS expects. Rows whose admin_level is not numeric (OSM carries the
// occasional "maritime" or empty tag) are dropped.
func (r *BoundaryRepo) FindContaining(ctx context.Context, coord domain.Coordinate) ([]domain.BoundaryMatch, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT admin_level, COALESCE(name, '')
		FROM boundaries
		WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		ORDER BY admin_level
	`, coord.Lon, coord.Lat)
	if err != nil {
		return nil, fmt.Errorf("boundary query: %w", err)
	}
	defer rows.Close()

	var matches []domain.BoundaryMatch
	for rows.Next() {
		var level, name string
		if err := rows.Scan(&level, &name); err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		lvl, err := strconv.Atoi(level)
		if err != nil {
			continue
		}
		matches = append(matches, domain.BoundaryMatch{AdminLevel: lvl, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}

	// admin_level is text in OSM data, so the SQL ordering is lexicographic;
	// re-sort numerically
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].AdminLevel < matches[j].AdminLevel
	})
	return matches, nil
}
