package geospatial

import "math"

// BoundingBox returns the box around a point with the given radius in meters.
// Latitude is clamped at the poles; near them the longitude span degenerates,
// so it is widened to the full circle to keep the box usable as a query
// window.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / 111320.0
	lonDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))
	if math.IsNaN(lonDelta) || math.IsInf(lonDelta, 0) || lonDelta <= 0 || lonDelta > 180 {
		lonDelta = 180
	}

	minLat = lat - latDelta
	maxLat = lat + latDelta
	if minLat < -90 {
		minLat = -90
	}
	if maxLat > 90 {
		maxLat = 90
	}
	return minLat, lon - lonDelta, maxLat, lon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
