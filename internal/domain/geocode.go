package domain

import "context"

// UnknownCountry replaces a missing country in geocoding results.
const UnknownCountry = "Unknown"

// Place is a named location with coordinates, as returned by geocoding or
// configured as a monitored weather location.
type Place struct {
	Name    string  `json:"name" yaml:"name"`
	Country string  `json:"country" yaml:"country"`
	Region  string  `json:"region,omitempty" yaml:"region"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
}

// HasCoordinates reports whether the place was resolved to a point.
func (p Place) HasCoordinates() bool {
	return p.Lat != 0 || p.Lon != 0
}

// Geocoder resolves free-text place names.
type Geocoder interface {
	// SearchPlaces returns up to count matches for name, best first.
	SearchPlaces(ctx context.Context, name string, count int) ([]Place, error)
}
