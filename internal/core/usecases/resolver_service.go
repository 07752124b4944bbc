package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/openschoolmap/georesolver/internal/core/domain"
	"github.com/openschoolmap/georesolver/internal/core/ports"
	"github.com/openschoolmap/georesolver/internal/pkg/geocache"
	"github.com/openschoolmap/georesolver/internal/pkg/metrics"
)

// ResolverService turns coordinates into administrative addresses. It never
// fails its caller: every upstream failure degrades to a smaller address,
// down to a fully empty one.
type ResolverService struct {
	boundaries ports.BoundaryRepository
	classifier ports.Classifier
	countries  ports.CountryCodes
	cache      geocache.Cache
	shared     ports.CacheService
	sharedTTL  int // seconds
}

// NewResolverService wires the resolver. boundaries, classifier, and shared
// may each be nil; resolution degrades accordingly. countries must not be
// nil. A nil cache selects an unbounded memo.
func NewResolverService(
	boundaries ports.BoundaryRepository,
	classifier ports.Classifier,
	countries ports.CountryCodes,
	cache geocache.Cache,
	shared ports.CacheService,
) *ResolverService {
	if cache == nil {
		cache = geocache.NewMemo()
	}
	return &ResolverService{
		boundaries: boundaries,
		classifier: classifier,
		countries:  countries,
		cache:      cache,
		shared:     shared,
		sharedTTL:  86400,
	}
}

// WithSharedTTL overrides the shared-tier TTL in seconds.
func (s *ResolverService) WithSharedTTL(seconds int) *ResolverService {
	if seconds > 0 {
		s.sharedTTL = seconds
	}
	return s
}

// Resolve returns the best-known administrative address for a coordinate.
// Coordinates that quantize equally are computed exactly once per process,
// however many goroutines ask.
func (s *ResolverService) Resolve(ctx context.Context, coord domain.Coordinate) domain.ResolvedAddress {
	q := coord.Quantize()

	computed := false
	addr := s.cache.GetOrCompute(q.Key(), func() domain.ResolvedAddress {
		computed = true
		return s.resolve(ctx, q)
	})
	if computed {
		metrics.CacheMisses.WithLabelValues("memory").Inc()
	} else {
		metrics.CacheHits.WithLabelValues("memory").Inc()
	}
	return addr
}

// CacheLen reports how many addresses are memoized in-process.
func (s *ResolverService) CacheLen() int {
	return s.cache.Len()
}

// resolve consults the shared cache tier, then computes fresh and writes the
// result back. Shared-tier failures are invisible to the caller.
func (s *ResolverService) resolve(ctx context.Context, coord domain.Coordinate) domain.ResolvedAddress {
	cacheKey := "resolve:" + coord.Key()

	if s.shared != nil {
		if data, err := s.shared.Get(ctx, cacheKey); err == nil {
			var addr domain.ResolvedAddress
			if err := json.Unmarshal(data, &addr); err == nil {
				metrics.CacheHits.WithLabelValues("shared").Inc()
				return addr
			}
		} else if !errors.Is(err, ports.ErrCacheMiss) {
			slog.Debug("shared cache read failed", "key", coord.Key(), "error", err)
		}
		metrics.CacheMisses.WithLabelValues("shared").Inc()
	}

	addr := s.resolveFresh(ctx, coord)

	if s.shared != nil {
		if data, err := json.Marshal(addr); err == nil {
			if err := s.shared.Set(ctx, cacheKey, data, s.sharedTTL); err != nil {
				slog.Debug("shared cache write failed", "key", coord.Key(), "error", err)
			}
		}
	}
	return addr
}

// resolveFresh runs the boundary-store / classifier cascade.
func (s *ResolverService) resolveFresh(ctx context.Context, coord domain.Coordinate) domain.ResolvedAddress {
	var matches []domain.BoundaryMatch
	if s.boundaries != nil {
		start := time.Now()
		found, err := s.boundaries.FindContaining(ctx, coord)
		metrics.BoundaryQueryDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			// degrade to no matches; the classifier may still answer
			metrics.BoundaryQueries.WithLabelValues("error").Inc()
			slog.Warn("boundary lookup failed", "key", coord.Key(), "error", err)
		} else {
			metrics.BoundaryQueries.WithLabelValues("ok").Inc()
			matches = found
		}
	}

	countryName, states, cities := partitionMatches(matches)

	var addr domain.ResolvedAddress
	hasCountry := countryName != ""
	if hasCountry {
		addr.Country = &countryName
		if code, ok := s.countries.CodeForName(countryName); ok {
			addr.CountryCode = &code
		} else {
			slog.Debug("no ISO code for boundary country", "key", coord.Key(), "country", countryName)
		}
	}
	if len(states) > 0 {
		addr.State = &states[0]
	}
	if city := SelectCity(cities, ""); city != "" {
		addr.City = &city
	}

	// the boundary store answered incompletely: let the offline classifier
	// fill what it can
	if !hasCountry || addr.CountryCode == nil {
		s.applyFallback(ctx, coord, &addr)
	}
	return addr
}

// applyFallback fills missing fields from the offline classifier. The
// classifier's country code always wins; its names only fill holes.
func (s *ResolverService) applyFallback(ctx context.Context, coord domain.Coordinate, addr *domain.ResolvedAddress) {
	if s.classifier == nil {
		return
	}

	cls, err := s.classifier.Classify(ctx, coord)
	if err != nil {
		if errors.Is(err, ports.ErrNoMatch) {
			metrics.ClassifierLookups.WithLabelValues("no_match").Inc()
		} else {
			metrics.ClassifierLookups.WithLabelValues("error").Inc()
			slog.Debug("classifier lookup failed", "key", coord.Key(), "error", err)
		}
		return
	}
	metrics.ClassifierLookups.WithLabelValues("match").Inc()

	if cls.CountryCode != "" {
		code := cls.CountryCode
		addr.CountryCode = &code
		if addr.Country == nil {
			if name, ok := s.countries.NameForCode(code); ok {
				addr.Country = &name
			} else {
				addr.Country = &code
			}
		}
	}
	if addr.City == nil && cls.Name != "" {
		city := cls.Name
		addr.City = &city
	}
}

// partitionMatches splits boundary matches into the country name, sorted
// state candidates, and city candidates per admin level. Matches with empty
// names are dropped; within a level the lexicographically smallest name wins,
// so overlapping polygons resolve deterministically.
func partitionMatches(matches []domain.BoundaryMatch) (country string, states []string, cities map[int]string) {
	cities = make(map[int]string)
	for _, m := range matches {
		if m.Name == "" {
			continue
		}
		switch m.AdminLevel {
		case domain.LevelCountry:
			if country == "" || m.Name < country {
				country = m.Name
			}
		case domain.LevelState:
			states = append(states, m.Name)
		case domain.LevelDistrict, domain.LevelCity, domain.LevelSuburb:
			if cur, ok := cities[m.AdminLevel]; !ok || m.Name < cur {
				cities[m.AdminLevel] = m.Name
			}
		}
	}
	sort.Strings(states)
	return country, states, cities
}

// SelectCity picks a city from per-level candidates: the municipal level
// first, then suburb, then district, then the hint. Returns "" when nothing
// applies.
func SelectCity(byLevel map[int]string, hint string) string {
	for _, level := range []int{domain.LevelCity, domain.LevelSuburb, domain.LevelDistrict} {
		if name := byLevel[level]; name != "" {
			return name
		}
	}
	return hint
}
