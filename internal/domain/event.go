package domain

import (
	"maps"
	"time"
)

// Category is the closed set of hazard kinds an Event can describe.
type Category string

const (
	CategorySeismic       Category = "seismic"
	CategoryFlood         Category = "flood"
	CategoryWindStorm     Category = "wind-storm"
	CategoryCyclone       Category = "cyclone"
	CategoryWildfire      Category = "wildfire"
	CategoryTsunami       Category = "tsunami"
	CategoryVolcanic      Category = "volcanic"
	CategorySevereWeather Category = "severe-weather"
	CategoryExtremeHeat   Category = "extreme-heat"
	CategoryExtremeCold   Category = "extreme-cold"
	CategoryDrought       Category = "drought"
	CategoryOther         Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategorySeismic,
	CategoryFlood,
	CategoryWindStorm,
	CategoryCyclone,
	CategoryWildfire,
	CategoryTsunami,
	CategoryVolcanic,
	CategorySevereWeather,
	CategoryExtremeHeat,
	CategoryExtremeCold,
	CategoryDrought,
	CategoryOther,
}

// DefaultCategories is the category selection applied when a consumer asks
// for the filtered feed without choosing categories.
var DefaultCategories = []Category{
	CategorySeismic,
	CategoryFlood,
	CategoryCyclone,
	CategoryWindStorm,
	CategoryWildfire,
	CategorySevereWeather,
}

// ParseCategory validates a category name. Unknown names map to CategoryOther
// with ok=false.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return CategoryOther, false
}

// Attribute keys shared by normalizers and consumers.
const (
	AttrMagnitude      = "magnitude"
	AttrDepth          = "depth"
	AttrSignificance   = "significance"
	AttrTsunamiWarning = "tsunami_warning"
	AttrWindSpeed      = "wind_speed_kmh"
	AttrWeatherCode    = "weather_code"
	AttrTemperatureMax = "temperature_max_c"
	AttrTemperatureMin = "temperature_min_c"
	AttrPrecipitation  = "precipitation_mm"
)

// RequiredAttributes lists the attribute keys every event of a category
// carries. Categories not listed have no required keys.
var RequiredAttributes = map[Category][]string{
	CategorySeismic:       {AttrMagnitude, AttrDepth, AttrSignificance, AttrTsunamiWarning},
	CategoryWindStorm:     {AttrWindSpeed},
	CategorySevereWeather: {AttrWeatherCode},
	CategoryExtremeHeat:   {AttrTemperatureMax},
	CategoryExtremeCold:   {AttrTemperatureMin},
	CategoryFlood:         {AttrPrecipitation},
}

// Attributes holds category-specific values (float64, int, bool or string).
type Attributes map[string]any

// Float returns a numeric attribute as float64.
func (a Attributes) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Location is where an event was observed.
type Location struct {
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Region string  `json:"region,omitempty"`
}

// Event is the normalized, source-agnostic hazard record. Events are values:
// an update produces a new Event with the same ID.
type Event struct {
	ID           string     `json:"id"`
	Category     Category   `json:"category"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Severity     Severity   `json:"severity"`
	Location     Location   `json:"location"`
	ObservedAt   time.Time  `json:"observed_at"`
	SourceName   string     `json:"source"`
	ReferenceURL string     `json:"reference_url,omitempty"`
	Attributes   Attributes `json:"attributes,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	e.Attributes = maps.Clone(e.Attributes)
	return e
}

// Feed is one published aggregation result, ordered newest first.
type Feed struct {
	Events      []Event   `json:"events"`
	Version     uint64    `json:"version"`
	Pass        uint64    `json:"pass"`
	PassID      string    `json:"pass_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Len returns the number of events in the feed.
func (f Feed) Len() int { return len(f.Events) }
