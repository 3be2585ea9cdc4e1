package dataset

// Coordinates locates a region for map views
type Coordinates struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	SizeMultiplier float64 `json:"size_multiplier"`
}

var regionCoordinates = map[string]Coordinates{
	"LONDON":                       {Lat: 51.5074, Lon: -0.1278, SizeMultiplier: 1.5},
	"NORTH WEST":                   {Lat: 53.4808, Lon: -2.2426, SizeMultiplier: 1.2},
	"MIDLANDS":                     {Lat: 52.4862, Lon: -1.8904, SizeMultiplier: 1.1},
	"SOUTH EAST":                   {Lat: 51.2308, Lon: 0.2713, SizeMultiplier: 1.0},
	"EAST OF ENGLAND":              {Lat: 52.2406, Lon: 0.5018, SizeMultiplier: 1.0},
	"SOUTH WEST":                   {Lat: 50.7156, Lon: -3.5309, SizeMultiplier: 0.9},
	"NORTH EAST AND YORKSHIRE":     {Lat: 54.0678, Lon: -1.3500, SizeMultiplier: 1.0},
	"SOUTH OF ENGLAND":             {Lat: 50.9097, Lon: -1.4044, SizeMultiplier: 0.8},
	"NORTH OF ENGLAND":             {Lat: 55.2088, Lon: -1.5941, SizeMultiplier: 0.8},
	"MIDLANDS AND EAST OF ENGLAND": {Lat: 52.3555, Lon: -0.2593, SizeMultiplier: 0.7},
	"UNIDENTIFIED":                 {Lat: 52.3555, Lon: -1.1743, SizeMultiplier: 0.5},
}

// RegionCoordinates returns the map position of a known region
func RegionCoordinates(region string) (Coordinates, bool) {
	c, ok := regionCoordinates[region]
	return c, ok
}
