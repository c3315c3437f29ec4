package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Location is a monitored weather location. Entries without coordinates are
// geocoded by name.
type Location struct {
	Name    string  `yaml:"name"`
	Country string  `yaml:"country"`
	Region  string  `yaml:"region"`
	Lat     float64 `yaml:"lat"`
	Lon     float64 `yaml:"lon"`
}

type locationsFile struct {
	Locations []Location `yaml:"locations"`
}

// LoadLocations reads a YAML file of the form:
//
//	locations:
//	  - name: Oklahoma City
//	    lat: 35.4676
//	    lon: -97.5164
//	  - name: Reykjavik
func LoadLocations(path string) ([]Location, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f locationsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	for i, loc := range f.Locations {
		if loc.Name == "" {
			return nil, fmt.Errorf("location %d: name is required", i)
		}
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return nil, fmt.Errorf("location %q: coordinates out of range", loc.Name)
		}
	}
	return f.Locations, nil
}
