package domain

// OSM administrative boundary levels the resolver cares about. Levels 7-9
// all describe city-ish areas; the municipal level 8 is the best answer when
// present.
const (
	LevelCountry  = 2
	LevelState    = 4
	LevelDistrict = 7
	LevelCity     = 8
	LevelSuburb   = 9
)

// BoundaryMatch is one administrative polygon that contains a queried point.
type BoundaryMatch struct {
	AdminLevel int    `json:"admin_level"`
	Name       string `json:"name"`
}

// ResolvedAddress is the administrative address assembled for a coordinate.
// Fields are nil when nothing could be determined for them; a fully nil
// address is still a valid resolution (open ocean, disputed areas).
type ResolvedAddress struct {
	CountryCode *string `json:"countryCode"`
	Country     *string `json:"country"`
	State       *string `json:"state"`
	City        *string `json:"city"`
}

// Empty reports whether nothing at all was resolved.
func (a ResolvedAddress) Empty() bool {
	return a.CountryCode == nil && a.Country == nil && a.State == nil && a.City == nil
}

// Classification is the offline classifier's nearest-place answer. The field
// names follow the GeoNames conventions: cc is the ISO 3166-1 alpha-2 code,
// admin1/admin2 are the first and second subdivision codes.
type Classification struct {
	CountryCode string  `json:"cc"`
	Name        string  `json:"name"`
	Admin1      string  `json:"admin1"`
	Admin2      string  `json:"admin2"`
	DistanceKm  float64 `json:"distance_km"`
}

// InputRecord is one point of interest read from a survey export. Coord is
// nil when the source record carried no usable coordinates.
type InputRecord struct {
	ID    string
	Name  string
	Coord *Coordinate
}

// ResolutionRecord is the persisted outcome for one input record.
type ResolutionRecord struct {
	Name       string          `json:"name"`
	Coordinate *Coordinate     `json:"coordinates"`
	Address    ResolvedAddress `json:"address"`
	Error      string          `json:"error,omitempty"`
}

// Checkpoint maps record identifiers to their resolution outcomes. It is both
// the pipeline's output format and its resume state: identifiers present here
// are never resolved again.
type Checkpoint map[string]ResolutionRecord

// Has reports whether the record identifier was already processed.
func (c Checkpoint) Has(id string) bool {
	_, ok := c[id]
	return ok
}
