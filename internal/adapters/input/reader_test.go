package input_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/openschoolmap/georesolver/internal/adapters/input"
)

const sampleExport = `[
  {"name": "Ecole Godard", "latitude": 48.7331439, "longitude": 1.3615715, "osm": {"type": "node", "id": 4889033757}},
  {"name": "No coords school", "osm": {"type": "way", "id": 123456}},
  {"name": "No identity"},
  {"name": "Bad types", "latitude": "north", "longitude": 1.0, "osm": {"type": "node", "id": 3}},
  {"name": "Relation site", "latitude": -33.9331562, "longitude": 18.5182556, "osm": {"type": "relation", "id": 789}}
]`

func TestReader_StreamsRecords(t *testing.T) {
	r, err := input.NewReader(strings.NewReader(sampleExport))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if first.ID != "N4889033757" {
		t.Errorf("ID = %q, want N4889033757", first.ID)
	}
	if first.Name != "Ecole Godard" {
		t.Errorf("Name = %q", first.Name)
	}
	if first.Coord == nil || first.Coord.Lat != 48.7331439 || first.Coord.Lon != 1.3615715 {
		t.Errorf("Coord = %+v", first.Coord)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.ID != "W123456" {
		t.Errorf("ID = %q, want W123456", second.ID)
	}
	if second.Coord != nil {
		t.Errorf("Coord = %+v, want nil for a record without coordinates", second.Coord)
	}

	// "No identity" and "Bad types" are skipped entirely
	third, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if third.ID != "R789" {
		t.Errorf("ID = %q, want R789", third.ID)
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
	// EOF is sticky
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("repeated err = %v, want io.EOF", err)
	}
}

func TestReader_RejectsNonArray(t *testing.T) {
	if _, err := input.NewReader(strings.NewReader(`{"name": "object"}`)); err == nil {
		t.Error("NewReader should reject a non-array document")
	}
	if _, err := input.NewReader(strings.NewReader(``)); err == nil {
		t.Error("NewReader should reject empty input")
	}
}

func TestReader_EmptyArray(t *testing.T) {
	r, err := input.NewReader(strings.NewReader(`[]`))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestRecordID(t *testing.T) {
	cases := []struct {
		osmType string
		id      int64
		want    string
	}{
		{"node", 4889033757, "N4889033757"},
		{"way", 45, "W45"},
		{"relation", 6, "R6"},
	}
	for _, tc := range cases {
		if got := input.RecordID(tc.osmType, tc.id); got != tc.want {
			t.Errorf("RecordID(%q, %d) = %q, want %q", tc.osmType, tc.id, got, tc.want)
		}
	}
}
