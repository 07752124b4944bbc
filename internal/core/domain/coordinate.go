package domain

import (
	"fmt"
	"math"
)

// QuantizeDecimals is the coordinate precision used for memoization keys.
// Five decimal places is roughly one meter at the equator, well below the
// positional accuracy of the survey data.
const QuantizeDecimals = 5

// Coordinate is a geographic point (WGS 84).
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Valid reports whether the coordinate is a finite point on the globe.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return false
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Quantize rounds the coordinate to QuantizeDecimals places so that nearby
// readings of the same location share a cache entry.
func (c Coordinate) Quantize() Coordinate {
	const scale = 1e5
	return Coordinate{
		Lat: math.Round(c.Lat*scale) / scale,
		Lon: math.Round(c.Lon*scale) / scale,
	}
}

// Key returns the canonical cache key for the coordinate. Callers should
// quantize first; two coordinates that quantize equally share a key.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lon)
}
