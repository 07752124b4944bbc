// Package input streams point-of-interest records from JSON array exports.
package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// osmRef is the nested OSM element reference carried by each record.
type osmRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

type rawRecord struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	OSM       *osmRef  `json:"osm"`
}

// Reader streams records out of a JSON array without holding the whole
// export in memory.
type Reader struct {
	dec    *json.Decoder
	closer io.Closer
}

// Open prepares a streaming reader over a JSON export file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader wraps an already-open JSON array stream.
func NewReader(r io.Reader) (*Reader, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("parse input: expected a JSON array, got %v", tok)
	}
	return &Reader{dec: dec}, nil
}

// Next returns the following record, or io.EOF when the array is exhausted.
// Records without an OSM reference cannot be identified and are skipped;
// records with a wrong-typed field are skipped too. Records without
// coordinates are returned with a nil Coord so the pipeline can count them.
func (r *Reader) Next() (*domain.InputRecord, error) {
	for r.dec.More() {
		var raw rawRecord
		if err := r.dec.Decode(&raw); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				slog.Warn("skipping malformed input record", "error", err)
				continue
			}
			return nil, fmt.Errorf("decode record: %w", err)
		}

		if raw.OSM == nil || raw.OSM.Type == "" || raw.OSM.ID == 0 {
			slog.Debug("skipping record without OSM reference", "name", raw.Name)
			continue
		}

		rec := &domain.InputRecord{
			ID:   RecordID(raw.OSM.Type, raw.OSM.ID),
			Name: raw.Name,
		}
		if raw.Latitude != nil && raw.Longitude != nil {
			rec.Coord = &domain.Coordinate{Lat: *raw.Latitude, Lon: *raw.Longitude}
		}
		return rec, nil
	}

	// consume the closing bracket; repeated calls keep returning io.EOF
	if _, err := r.dec.Token(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	return nil, io.EOF
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// RecordID derives the canonical identifier from an OSM element reference:
// the element type's first letter uppercased, then the numeric id
// (node 123 -> "N123", way 45 -> "W45", relation 6 -> "R6").
func RecordID(osmType string, id int64) string {
	return strings.ToUpper(osmType[:1]) + strconv.FormatInt(id, 10)
}
