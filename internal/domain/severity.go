package domain

import (
	"fmt"
	"math"
	"strings"
)

// Severity ranks event impact. The zero value is SeverityLow and the
// constants are totally ordered low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"low", "medium", "high", "critical"}

func (s Severity) String() string {
	if s < SeverityLow || s > SeverityCritical {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// AtLeast reports whether s ranks at or above min.
func (s Severity) AtLeast(minimum Severity) bool { return s >= minimum }

// ParseSeverity accepts the lowercase severity names.
func ParseSeverity(v string) (Severity, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for i, name := range severityNames {
		if name == v {
			return Severity(i), nil
		}
	}
	return SeverityLow, fmt.Errorf("unknown severity %q", v)
}

// MarshalText encodes the severity as its name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Cutoffs are the medium/high/critical boundaries for one measured value.
// With Descending set, lower values are worse (value <= cutoff).
type Cutoffs struct {
	Medium     float64
	High       float64
	Critical   float64
	Descending bool
}

// Classify maps a value to a severity. It is total: NaN is low and
// infinities land on the matching end of the scale.
func (c Cutoffs) Classify(v float64) Severity {
	if math.IsNaN(v) {
		return SeverityLow
	}
	reaches := func(cut float64) bool {
		if c.Descending {
			return v <= cut
		}
		return v >= cut
	}
	switch {
	case reaches(c.Critical):
		return SeverityCritical
	case reaches(c.High):
		return SeverityHigh
	case reaches(c.Medium):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Reaches reports whether v is at least medium severity.
func (c Cutoffs) Reaches(v float64) bool {
	return c.Classify(v) >= SeverityMedium
}

// Thresholds groups the per-category cutoffs used by the normalizers.
type Thresholds struct {
	Seismic       Cutoffs
	WindStorm     Cutoffs
	SevereWeather Cutoffs
	ExtremeHeat   Cutoffs
	ExtremeCold   Cutoffs
	Flood         Cutoffs
}

// DefaultThresholds returns the editorial defaults documented in the package doc.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Seismic:       Cutoffs{Medium: 4.5, High: 6.0, Critical: 7.0},
		WindStorm:     Cutoffs{Medium: 62, High: 89, Critical: 118},
		SevereWeather: Cutoffs{Medium: 95, High: 96, Critical: 99},
		ExtremeHeat:   Cutoffs{Medium: 35, High: 40, Critical: 45},
		ExtremeCold:   Cutoffs{Medium: -20, High: -30, Critical: -40, Descending: true},
		Flood:         Cutoffs{Medium: 50, High: 100, Critical: 150},
	}
}

// For returns the cutoffs for a category, if it has any.
func (t Thresholds) For(c Category) (Cutoffs, bool) {
	switch c {
	case CategorySeismic:
		return t.Seismic, true
	case CategoryWindStorm:
		return t.WindStorm, true
	case CategorySevereWeather:
		return t.SevereWeather, true
	case CategoryExtremeHeat:
		return t.ExtremeHeat, true
	case CategoryExtremeCold:
		return t.ExtremeCold, true
	case CategoryFlood:
		return t.Flood, true
	default:
		return Cutoffs{}, false
	}
}

// MagnitudeSeverity classifies an earthquake magnitude with the default cutoffs.
func MagnitudeSeverity(magnitude float64) Severity {
	return DefaultThresholds().Seismic.Classify(magnitude)
}
