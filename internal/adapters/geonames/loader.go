// Package geonames implements the offline fallback classifier over a
// GeoNames places extract (e.g. cities1000.txt).
package geonames

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
)

// Place is one reference populated place from the GeoNames dataset.
type Place struct {
	Name        string
	CountryCode string
	Admin1      string
	Admin2      string
	Lat         float64
	Lon         float64
}

// GeoNames dump column offsets (tab-separated, 19 columns).
const (
	colName        = 1
	colLat         = 4
	colLon         = 5
	colCountryCode = 8
	colAdmin1      = 10
	colAdmin2      = 11
)

// ReadPlaces parses a GeoNames places dump. Malformed rows are skipped and
// counted, not fatal: a handful of broken lines must not sink a 100MB
// dataset.
func ReadPlaces(r io.Reader) ([]Place, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var places []Place
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return places, fmt.Errorf("read dataset: %w", err)
		}

		if len(rec) <= colAdmin1 {
			skipped++
			continue
		}
		lat, err := strconv.ParseFloat(rec[colLat], 64)
		if err != nil {
			skipped++
			continue
		}
		lon, err := strconv.ParseFloat(rec[colLon], 64)
		if err != nil {
			skipped++
			continue
		}
		if rec[colName] == "" || rec[colCountryCode] == "" {
			skipped++
			continue
		}

		p := Place{
			Name:        rec[colName],
			CountryCode: rec[colCountryCode],
			Admin1:      rec[colAdmin1],
			Lat:         lat,
			Lon:         lon,
		}
		if len(rec) > colAdmin2 {
			p.Admin2 = rec[colAdmin2]
		}
		places = append(places, p)
	}

	if skipped > 0 {
		slog.Warn("skipped malformed dataset rows", "rows", skipped)
	}
	return places, nil
}

// Load reads a GeoNames dump from disk and builds a classifier over it.
func Load(path string, maxRadiusKm float64) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	places, err := ReadPlaces(f)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("dataset %s contains no usable places", path)
	}
	return New(places, maxRadiusKm), nil
}
