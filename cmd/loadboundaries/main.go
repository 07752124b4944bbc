package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openschoolmap/georesolver/internal/pkg/config"
)

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: loadboundaries <file-or-url.geojson> [more...]")
	}

	cfg, err := config.Load("georesolver-loadboundaries")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	client := &http.Client{Timeout: 120 * time.Second}

	log.Printf("GeoResolver boundary loader — %d source(s)", len(os.Args)-1)

	for _, src := range os.Args[1:] {
		if err := loadSource(ctx, pool, client, src); err != nil {
			log.Printf("ERROR [%s]: %v", src, err)
		}
	}

	log.Println("import complete")
}

// ---------------------------------------------------------------------------
// Per-source import
// ---------------------------------------------------------------------------

// feature is one entry of a GeoJSON FeatureCollection. Geometry stays raw;
// PostGIS parses it server-side.
type feature struct {
	ID         any             `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

func loadSource(ctx context.Context, pool *pgxpool.Pool, client *http.Client, src string) error {
	r, err := openSource(client, src)
	if err != nil {
		return err
	}
	defer r.Close()

	dec := json.NewDecoder(r)
	if err := seekFeatures(dec); err != nil {
		return err
	}

	const batchSize = 500
	batch := &pgx.Batch{}
	count := 0
	total := 0
	skipped := 0

	for dec.More() {
		var f feature
		if err := dec.Decode(&f); err != nil {
			return fmt.Errorf("decode feature: %w", err)
		}

		osmID := featureOSMID(f)
		adminLevel := propString(f.Properties, "admin_level")
		name := propString(f.Properties, "name")
		if name == "" {
			name = propString(f.Properties, "name:en")
		}

		// Overpass exports carry label nodes and non-administrative members
		// alongside the polygons. Only closed areas with an admin level and a
		// stable id are usable.
		if osmID == "" || adminLevel == "" || !isArea(f.Geometry) {
			skipped++
			continue
		}

		batch.Queue(`
			INSERT INTO boundaries (osm_id, admin_level, name, geom)
			VALUES ($1, $2, $3, ST_SetSRID(ST_GeomFromGeoJSON($4), 4326))
			ON CONFLICT (osm_id) DO UPDATE
			SET admin_level = EXCLUDED.admin_level, name = EXCLUDED.name, geom = EXCLUDED.geom
		`, osmID, adminLevel, nilEmpty(name), string(f.Geometry))

		count++
		total++

		if count >= batchSize {
			if err := flushBatch(ctx, pool, batch, count); err != nil {
				return err
			}
			batch = &pgx.Batch{}
			count = 0
		}
	}

	if count > 0 {
		if err := flushBatch(ctx, pool, batch, count); err != nil {
			return err
		}
	}

	log.Printf("[%s] boundaries: %d imported, %d skipped", sourceLabel(src), total, skipped)
	return nil
}

// ---------------------------------------------------------------------------
// Input handling
// ---------------------------------------------------------------------------

func openSource(client *http.Client, src string) (io.ReadCloser, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		log.Printf("[%s] downloading", sourceLabel(src))
		resp, err := client.Get(src)
		if err != nil {
			return nil, fmt.Errorf("download: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, src)
		}
		return resp.Body, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return f, nil
}

// seekFeatures advances the decoder to just inside the top-level "features"
// array, so features can be streamed one at a time instead of holding a
// country-sized FeatureCollection in memory.
func seekFeatures(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("no features array found")
			}
			return fmt.Errorf("scan for features: %w", err)
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		case string:
			if depth == 1 && t == "features" {
				open, err := dec.Token()
				if err != nil {
					return fmt.Errorf("read features array: %w", err)
				}
				if open != json.Delim('[') {
					return fmt.Errorf("features is not an array")
				}
				return nil
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// featureOSMID returns a stable identifier for the feature. osmtogeojson sets
// "relation/123", raw overpass JSON a numeric id, some exports only "@id".
func featureOSMID(f feature) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	if v, ok := f.Properties["@id"].(string); ok && v != "" {
		return v
	}
	return ""
}

func propString(props map[string]any, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// isArea reports whether the geometry is a polygon or multipolygon.
func isArea(geom json.RawMessage) bool {
	if len(geom) == 0 {
		return false
	}
	var g struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(geom, &g); err != nil {
		return false
	}
	return g.Type == "Polygon" || g.Type == "MultiPolygon"
}

func nilEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func sourceLabel(src string) string {
	if strings.Contains(src, "://") {
		return src
	}
	return filepath.Base(src)
}

func flushBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch, count int) error {
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < count; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}
