package http

import (
	"errors"
	"sort"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
)

var tracer = otel.Tracer("georesolver/http")

// parseCoordinate validates a lat/lon query pair. Zero is a legal value for
// both axes, so presence is checked before parsing.
func parseCoordinate(latStr, lonStr string) (domain.Coordinate, error) {
	if latStr == "" || lonStr == "" {
		return domain.Coordinate{}, errors.New("lat and lon query parameters are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("lat must be decimal degrees")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return domain.Coordinate{}, errors.New("lon must be decimal degrees")
	}
	coord := domain.Coordinate{Lat: lat, Lon: lon}
	if !coord.Valid() {
		return domain.Coordinate{}, errors.New("lat must be within [-90, 90] and lon within [-180, 180]")
	}
	return coord, nil
}

// resolveResponse echoes the queried point alongside its resolved address.
type resolveResponse struct {
	Latitude  float64                `json:"latitude"`
	Longitude float64                `json:"longitude"`
	Address   domain.ResolvedAddress `json:"address"`
}

// recordResponse is a checkpoint record with its identifier attached.
type recordResponse struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Coordinates *domain.Coordinate     `json:"coordinates"`
	Address     domain.ResolvedAddress `json:"address"`
}

// ResolveHandler resolves a single coordinate to an administrative address.
func ResolveHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coord, err := parseCoordinate(c.Query("lat"), c.Query("lon"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		ctx, span := tracer.Start(c.UserContext(), "resolve")
		span.SetAttributes(
			attribute.Float64("geo.lat", coord.Lat),
			attribute.Float64("geo.lon", coord.Lon),
		)
		defer span.End()

		addr := deps.Resolver.Resolve(ctx, coord)

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(resolveResponse{Latitude: coord.Lat, Longitude: coord.Lon, Address: addr})
	}
}

// BatchResolveHandler resolves up to 100 coordinates in one request. The
// response preserves input order.
func BatchResolveHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var coords []domain.Coordinate
		if err := c.BodyParser(&coords); err != nil {
			return errBadRequest(c, "request body must be a JSON array of {latitude, longitude} objects")
		}
		if len(coords) == 0 {
			return errBadRequest(c, "at least one coordinate is required")
		}
		if len(coords) > 100 {
			return errBadRequest(c, "maximum 100 coordinates per request")
		}
		for i, coord := range coords {
			if !coord.Valid() {
				return errBadRequest(c, "coordinate "+strconv.Itoa(i)+" is out of range")
			}
		}

		ctx, span := tracer.Start(c.UserContext(), "resolve_batch")
		span.SetAttributes(attribute.Int("batch.size", len(coords)))
		defer span.End()

		results := make([]resolveResponse, 0, len(coords))
		for _, coord := range coords {
			results = append(results, resolveResponse{
				Latitude:  coord.Lat,
				Longitude: coord.Lon,
				Address:   deps.Resolver.Resolve(ctx, coord),
			})
		}
		return c.JSON(results)
	}
}

// BoundariesHandler returns the raw boundary polygons containing a point,
// ordered by admin level.
func BoundariesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coord, err := parseCoordinate(c.Query("lat"), c.Query("lon"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if deps.Boundaries == nil {
			return errInternal(c, "boundary store not available")
		}

		matches, err := deps.Boundaries.FindContaining(c.Context(), coord)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if matches == nil {
			matches = []domain.BoundaryMatch{}
		}

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(fiber.Map{
			"latitude":                  coord.Lat,
			"longitude":                 coord.Lon,
			"administrative_boundaries": matches,
		})
	}
}

// ClassifyHandler runs only the nearest-place fallback classifier.
func ClassifyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coord, err := parseCoordinate(c.Query("lat"), c.Query("lon"))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if deps.Classifier == nil {
			return errInternal(c, "classifier not available")
		}

		cls, err := deps.Classifier.Classify(c.Context(), coord)
		if err != nil {
			if errors.Is(err, ports.ErrNoMatch) {
				return errNotFound(c, "no known place within the search radius")
			}
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(cls)
	}
}

// ListRecordsHandler pages through the loaded checkpoint, ordered by
// identifier.
func ListRecordsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids := make([]string, 0, len(deps.Records))
		for id := range deps.Records {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		total := len(ids)
		if offset >= total {
			ids = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			ids = ids[offset:end]
		}

		records := make([]recordResponse, 0, len(ids))
		for _, id := range ids {
			rec := deps.Records[id]
			records = append(records, recordResponse{
				ID:          id,
				Name:        rec.Name,
				Coordinates: rec.Coordinate,
				Address:     rec.Address,
			})
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: records, Pagination: pg})
	}
}

// GetRecordHandler returns a single checkpoint record by identifier.
func GetRecordHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "record id is required")
		}
		rec, ok := deps.Records[id]
		if !ok {
			return errNotFound(c, "record not found")
		}
		return c.JSON(recordResponse{
			ID:          id,
			Name:        rec.Name,
			Coordinates: rec.Coordinate,
			Address:     rec.Address,
		})
	}
}

// ResolverStats summarizes the boundary store and the loaded checkpoint.
type ResolverStats struct {
	Boundaries   int `json:"boundaries"`
	Countries    int `json:"countries"`
	States       int `json:"states"`
	CityLevel    int `json:"city_level"`
	CachedPoints int `json:"cached_points"`
	Records      int `json:"records"`
}

// StatsHandler returns boundary row counts by admin level plus in-memory
// state. admin_level is text in the store, hence the quoted values.
func StatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats ResolverStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM boundaries),
				(SELECT count(*) FROM boundaries WHERE admin_level = '2'),
				(SELECT count(*) FROM boundaries WHERE admin_level = '4'),
				(SELECT count(*) FROM boundaries WHERE admin_level IN ('7', '8', '9'))
		`)
		if err := row.Scan(&stats.Boundaries, &stats.Countries, &stats.States, &stats.CityLevel); err != nil {
			return errInternal(c, err.Error())
		}

		if deps.Resolver != nil {
			stats.CachedPoints = deps.Resolver.CacheLen()
		}
		stats.Records = len(deps.Records)

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}
