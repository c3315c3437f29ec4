package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

const (
	// UnknownLocation replaces a missing USGS place string.
	UnknownLocation = "Unknown location"
)

// unknownTime is the ObservedAt default when upstream omits a timestamp.
var unknownTime = time.Unix(0, 0).UTC()

// SeismicMagnitude extracts the magnitude of a USGS feature. ok is false when
// the property is missing, null or NaN.
func SeismicMagnitude(f *geojson.Feature) (float64, bool) {
	if f == nil {
		return 0, false
	}
	mag, err := f.PropertyFloat64("mag")
	if err != nil || math.IsNaN(mag) {
		return 0, false
	}
	return mag, true
}

// PassesMagnitude reports whether a feature's magnitude is known and at or
// above minimum. It drops near-zero noise before normalization.
func PassesMagnitude(f *geojson.Feature, minimum float64) bool {
	mag, ok := SeismicMagnitude(f)
	return ok && mag >= minimum
}

// NormalizeSeismicFeature maps a USGS GeoJSON feature to an Event. Missing
// optional fields are filled with the documented defaults; it never fails.
func NormalizeSeismicFeature(f *geojson.Feature, sourceName string, th Thresholds) Event {
	if f == nil {
		f = &geojson.Feature{}
	}
	mag, ok := SeismicMagnitude(f)
	if !ok {
		mag = 0
	}

	lon, lat, depth := pointCoordinates(f.Geometry)
	place := propString(f, "place")
	if place == "" {
		place = UnknownLocation
	}

	magText := strconv.FormatFloat(mag, 'f', -1, 64)
	title := propString(f, "title")
	description := title
	if title == "" {
		title = fmt.Sprintf("M%s earthquake", magText)
		description = fmt.Sprintf("Magnitude %s earthquake", magText)
	}

	observedAt := unknownTime
	if ms, err := f.PropertyFloat64("time"); err == nil && !math.IsNaN(ms) {
		observedAt = time.UnixMilli(int64(ms)).UTC()
	}

	significance, err := f.PropertyFloat64("sig")
	if err != nil || math.IsNaN(significance) {
		significance = 0
	}
	tsunami, err := f.PropertyFloat64("tsunami")
	if err != nil {
		tsunami = 0
	}

	id := featureID(f)
	if id == "" {
		id = generateID(CategorySeismic, place, lat, lon, strconv.FormatInt(observedAt.UnixMilli(), 10))
	}

	return Event{
		ID:          id,
		Category:    CategorySeismic,
		Title:       title,
		Description: description,
		Severity:    th.Seismic.Classify(mag),
		Location: Location{
			Name:   place,
			Lat:    lat,
			Lon:    lon,
			Region: placeRegion(place),
		},
		ObservedAt:   observedAt,
		SourceName:   sourceName,
		ReferenceURL: propString(f, "url"),
		Attributes: Attributes{
			AttrMagnitude:      mag,
			AttrDepth:          depth,
			AttrSignificance:   significance,
			AttrTsunamiWarning: tsunami == 1,
		},
	}
}

// pointCoordinates reads [lon, lat, depth] from a point geometry, defaulting
// absent members to 0.
func pointCoordinates(g *geojson.Geometry) (lon, lat, depth float64) {
	if g == nil || !g.IsPoint() {
		return 0, 0, 0
	}
	coords := g.Point
	if len(coords) > 0 {
		lon = coords[0]
	}
	if len(coords) > 1 {
		lat = coords[1]
	}
	if len(coords) > 2 && !math.IsNaN(coords[2]) {
		depth = coords[2]
	}
	return lon, lat, depth
}

func propString(f *geojson.Feature, key string) string {
	s, err := f.PropertyString(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func featureID(f *geojson.Feature) string {
	switch id := f.ID.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// placeRegion returns the trailing ", <region>" of a USGS place string,
// e.g. "15km NW of Ridgecrest, CA" -> "CA".
func placeRegion(place string) string {
	i := strings.LastIndex(place, ",")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(place[i+1:])
}
