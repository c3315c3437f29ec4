package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Forecast is the subset of an Open-Meteo forecast response the service uses.
type Forecast struct {
	Latitude  float64           `json:"latitude"`
	Longitude float64           `json:"longitude"`
	Current   CurrentConditions `json:"current"`
	Daily     DailyForecast     `json:"daily"`
}

// CurrentConditions mirrors the "current" block of a forecast.
type CurrentConditions struct {
	Time                string  `json:"time"`
	Temperature         float64 `json:"temperature_2m"`
	RelativeHumidity    float64 `json:"relative_humidity_2m"`
	ApparentTemperature float64 `json:"apparent_temperature"`
	IsDay               int     `json:"is_day"`
	Precipitation       float64 `json:"precipitation"`
	WeatherCode         int     `json:"weather_code"`
	WindSpeed           float64 `json:"wind_speed_10m"`
	WindDirection       float64 `json:"wind_direction_10m"`
}

// DailyForecast holds parallel per-day arrays. Arrays may be shorter than
// Time; missing entries read as zero.
type DailyForecast struct {
	Time                        []string  `json:"time"`
	WeatherCode                 []int     `json:"weather_code"`
	TemperatureMax              []float64 `json:"temperature_2m_max"`
	TemperatureMin              []float64 `json:"temperature_2m_min"`
	PrecipitationSum            []float64 `json:"precipitation_sum"`
	PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	WindSpeedMax                []float64 `json:"wind_speed_10m_max"`
}

// HasDaily reports whether the forecast carries at least one day.
func (f Forecast) HasDaily() bool { return len(f.Daily.Time) > 0 }

// Report defaults for values the free forecast tier does not provide.
const (
	StandardPressureHpa  = 1013
	DefaultVisibilityKm  = 10
	ReportForecastDays   = 5
	openMeteoCurrentTime = "2006-01-02T15:04"
	openMeteoDate        = "2006-01-02"
)

// CurrentWeather is the consumer view of current conditions.
type CurrentWeather struct {
	Temperature   int     `json:"temperature"`
	FeelsLike     int     `json:"feels_like"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	Visibility    float64 `json:"visibility"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
	WeatherCode   int     `json:"weather_code"`
	Description   string  `json:"weather_description"`
	IsDay         bool    `json:"is_day"`
}

// ForecastDay is one day of the consumer forecast view.
type ForecastDay struct {
	Date                     time.Time `json:"date"`
	TemperatureMin           int       `json:"temperature_min"`
	TemperatureMax           int       `json:"temperature_max"`
	WeatherCode              int       `json:"weather_code"`
	Description              string    `json:"weather_description"`
	PrecipitationProbability float64   `json:"precipitation_probability"`
	WindSpeed                float64   `json:"wind_speed"`
}

// WeatherReport combines current conditions and a short forecast for a place.
type WeatherReport struct {
	Place       Place          `json:"location"`
	Current     CurrentWeather `json:"current"`
	Forecast    []ForecastDay  `json:"forecast"`
	LastUpdated time.Time      `json:"last_updated"`
}

// BuildWeatherReport converts a forecast into the consumer report. updated
// is the synchronized current instant.
func BuildWeatherReport(f Forecast, place Place, updated time.Time) WeatherReport {
	c := f.Current
	report := WeatherReport{
		Place: place,
		Current: CurrentWeather{
			Temperature:   roundInt(c.Temperature),
			FeelsLike:     roundInt(c.ApparentTemperature),
			Humidity:      c.RelativeHumidity,
			Pressure:      StandardPressureHpa,
			Visibility:    DefaultVisibilityKm,
			WindSpeed:     c.WindSpeed,
			WindDirection: c.WindDirection,
			WeatherCode:   c.WeatherCode,
			Description:   DescribeWeatherCode(c.WeatherCode),
			IsDay:         c.IsDay == 1,
		},
		LastUpdated: updated.UTC(),
	}

	days := min(len(f.Daily.Time), ReportForecastDays)
	report.Forecast = make([]ForecastDay, 0, days)
	for i := range days {
		code := intAt(f.Daily.WeatherCode, i)
		report.Forecast = append(report.Forecast, ForecastDay{
			Date:                     parseForecastTime(f.Daily.Time[i]),
			TemperatureMin:           roundInt(floatAt(f.Daily.TemperatureMin, i)),
			TemperatureMax:           roundInt(floatAt(f.Daily.TemperatureMax, i)),
			WeatherCode:              code,
			Description:              DescribeWeatherCode(code),
			PrecipitationProbability: floatAt(f.Daily.PrecipitationProbabilityMax, i),
			WindSpeed:                floatAt(f.Daily.WindSpeedMax, i),
		})
	}
	return report
}

// NormalizeForecast derives hazard events from the daily forecast of a
// place. One event is emitted per (category, day) whose value reaches medium
// severity under th.
func NormalizeForecast(f Forecast, place Place, sourceName string, th Thresholds) []Event {
	lat, lon := place.Lat, place.Lon
	if !place.HasCoordinates() {
		lat, lon = f.Latitude, f.Longitude
	}
	name := strings.TrimSpace(place.Name)
	if name == "" {
		name = fmt.Sprintf("%.2f, %.2f", lat, lon)
	}
	loc := Location{Name: name, Lat: lat, Lon: lon, Region: place.Region}

	var events []Event
	for i, day := range f.Daily.Time {
		observed := parseForecastTime(day)
		emit := func(c Category, value float64, attr string, attrValue any, title, description string) {
			cut, _ := th.For(c)
			if !cut.Reaches(value) {
				return
			}
			events = append(events, Event{
				ID:          generateID(c, name, lat, lon, day),
				Category:    c,
				Title:       title,
				Description: description,
				Severity:    cut.Classify(value),
				Location:    loc,
				ObservedAt:  observed,
				SourceName:  sourceName,
				Attributes:  Attributes{attr: attrValue},
			})
		}

		code := intAt(f.Daily.WeatherCode, i)
		emit(CategorySevereWeather, float64(code), AttrWeatherCode, code,
			fmt.Sprintf("Thunderstorms forecast near %s", name),
			fmt.Sprintf("Forecast for %s: %s", day, DescribeWeatherCode(code)))

		wind := floatAt(f.Daily.WindSpeedMax, i)
		emit(CategoryWindStorm, wind, AttrWindSpeed, wind,
			fmt.Sprintf("Damaging winds forecast near %s", name),
			fmt.Sprintf("Maximum winds of %.0f km/h forecast for %s", wind, day))

		tmax := floatAt(f.Daily.TemperatureMax, i)
		emit(CategoryExtremeHeat, tmax, AttrTemperatureMax, tmax,
			fmt.Sprintf("Extreme heat forecast near %s", name),
			fmt.Sprintf("High of %.0f°C forecast for %s", tmax, day))

		tmin := floatAt(f.Daily.TemperatureMin, i)
		emit(CategoryExtremeCold, tmin, AttrTemperatureMin, tmin,
			fmt.Sprintf("Extreme cold forecast near %s", name),
			fmt.Sprintf("Low of %.0f°C forecast for %s", tmin, day))

		rain := floatAt(f.Daily.PrecipitationSum, i)
		emit(CategoryFlood, rain, AttrPrecipitation, rain,
			fmt.Sprintf("Flood risk near %s", name),
			fmt.Sprintf("%.0f mm of precipitation forecast for %s", rain, day))
	}
	return events
}

// weatherDescriptions follows the WMO 4677 codes Open-Meteo reports.
var weatherDescriptions = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	71: "slight snow",
	73: "moderate snow",
	75: "heavy snow",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// DescribeWeatherCode returns the text for a WMO weather code, or "unknown".
func DescribeWeatherCode(code int) string {
	if d, ok := weatherDescriptions[code]; ok {
		return d
	}
	return "unknown"
}

// parseForecastTime accepts Open-Meteo current and daily timestamps, and
// RFC 3339 for good measure. Unparseable input yields the Unix epoch.
func parseForecastTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, openMeteoCurrentTime, openMeteoDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return unknownTime
}

func floatAt(values []float64, i int) float64 {
	if i < 0 || i >= len(values) || math.IsNaN(values[i]) {
		return 0
	}
	return values[i]
}

func intAt(values []int, i int) int {
	if i < 0 || i >= len(values) {
		return 0
	}
	return values[i]
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}
