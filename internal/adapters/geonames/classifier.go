package geonames

import (
	"context"
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/umahmood/haversine"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/pkg/geospatial"
)

// DefaultMaxRadiusKm bounds how far away a place may be and still count as
// an answer. Beyond that the point is open water or wilderness and "nearest
// city" stops meaning anything.
const DefaultMaxRadiusKm = 50.0

// pointExtent is the degenerate box size used to index each place; rtreego
// rejects zero-extent rectangles.
const pointExtent = 1e-6

// Classifier finds the nearest known place to a coordinate using an
// in-memory R-tree. Lookups are read-only and safe for concurrent use.
type Classifier struct {
	tree        *rtreego.Rtree
	maxRadiusKm float64
	size        int
}

type placeItem struct {
	rect  *rtreego.Rect
	place Place
}

func (p *placeItem) Bounds() rtreego.Rect {
	return *p.rect
}

// New indexes the given places. maxRadiusKm <= 0 selects DefaultMaxRadiusKm.
func New(places []Place, maxRadiusKm float64) *Classifier {
	if maxRadiusKm <= 0 {
		maxRadiusKm = DefaultMaxRadiusKm
	}

	tree := rtreego.NewTree(2, 25, 50)
	indexed := 0
	for _, p := range places {
		point := rtreego.Point{p.Lon, p.Lat}
		rect, err := rtreego.NewRect(point, []float64{pointExtent, pointExtent})
		if err != nil {
			continue
		}
		tree.Insert(&placeItem{rect: &rect, place: p})
		indexed++
	}

	return &Classifier{tree: tree, maxRadiusKm: maxRadiusKm, size: indexed}
}

// Size returns the number of indexed places.
func (c *Classifier) Size() int {
	return c.size
}

// Classify returns the nearest indexed place within the search radius, or
// ports.ErrNoMatch when none qualifies.
func (c *Classifier) Classify(ctx context.Context, coord domain.Coordinate) (*domain.Classification, error) {
	if c.size == 0 {
		return nil, ports.ErrNoMatch
	}

	rect, err := searchRect(coord, c.maxRadiusKm)
	if err != nil {
		return nil, fmt.Errorf("search rect: %w", err)
	}

	origin := haversine.Coord{Lat: coord.Lat, Lon: coord.Lon}
	var best *placeItem
	bestKm := math.MaxFloat64
	for _, spatial := range c.tree.SearchIntersect(rect) {
		item := spatial.(*placeItem)
		_, km := haversine.Distance(origin, haversine.Coord{Lat: item.place.Lat, Lon: item.place.Lon})
		if km < bestKm {
			best = item
			bestKm = km
		}
	}

	if best == nil || bestKm > c.maxRadiusKm {
		return nil, ports.ErrNoMatch
	}

	return &domain.Classification{
		CountryCode: best.place.CountryCode,
		Name:        best.place.Name,
		Admin1:      best.place.Admin1,
		Admin2:      best.place.Admin2,
		DistanceKm:  bestKm,
	}, nil
}

// searchRect is the bounding box covering the search radius around a point.
// The box overshoots the true circle; exact distances are settled by
// haversine afterwards.
func searchRect(coord domain.Coordinate, radiusKm float64) (rtreego.Rect, error) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(coord.Lat, coord.Lon, radiusKm*1000)
	return rtreego.NewRect(
		rtreego.Point{minLon, minLat},
		[]float64{maxLon - minLon, maxLat - minLat},
	)
}
