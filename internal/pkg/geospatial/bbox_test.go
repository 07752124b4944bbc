package geospatial_test

import (
	"testing"

	"github.com/openschoolmap/georesolver/internal/pkg/geospatial"
)

func TestBoundingBox_Equator(t *testing.T) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(0, 0, 111320)

	// 111320 m is one degree of latitude
	if minLat > -0.99 || minLat < -1.01 {
		t.Errorf("minLat = %f, want ~-1", minLat)
	}
	if maxLat < 0.99 || maxLat > 1.01 {
		t.Errorf("maxLat = %f, want ~1", maxLat)
	}
	if minLon > -0.99 || maxLon < 0.99 {
		t.Errorf("lon span [%f, %f], want ~[-1, 1]", minLon, maxLon)
	}
}

func TestBoundingBox_HighLatitudeWidensLongitude(t *testing.T) {
	_, minLon, _, maxLon := geospatial.BoundingBox(60, 10, 50000)
	_, eqMinLon, _, eqMaxLon := geospatial.BoundingBox(0, 10, 50000)

	if (maxLon - minLon) <= (eqMaxLon - eqMinLon) {
		t.Errorf("longitude span at 60N (%f) should exceed the equatorial span (%f)",
			maxLon-minLon, eqMaxLon-eqMinLon)
	}
}

func TestBoundingBox_PoleStaysValid(t *testing.T) {
	minLat, minLon, maxLat, maxLon := geospatial.BoundingBox(90, 0, 50000)

	if maxLat > 90 {
		t.Errorf("maxLat = %f, must not exceed 90", maxLat)
	}
	if minLat >= maxLat {
		t.Errorf("degenerate latitude span [%f, %f]", minLat, maxLat)
	}
	if minLon >= maxLon {
		t.Errorf("degenerate longitude span [%f, %f]", minLon, maxLon)
	}
}
