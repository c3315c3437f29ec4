// Package domain models environmental hazard events collected from public
// data sources.
//
// # Data Sources
//
// Seismic events come from the USGS earthquake summary feeds
// (https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/), served as
// GeoJSON FeatureCollections. Weather hazards are derived from Open-Meteo
// daily forecasts (https://open-meteo.com), and monitored places are resolved
// through the Open-Meteo geocoding API.
//
// # USGS Conventions
//
// Feature properties:
//
//	mag      magnitude, may be null for very small or unreviewed events
//	place    "<distance> <compass> of <name>, <region>", e.g. "15km NW of Ridgecrest, CA"
//	time     milliseconds since the Unix epoch (UTC)
//	sig      significance 0-1000, may be null
//	tsunami  1 when a tsunami flag is raised, otherwise 0
//	url      event page
//	title    "M 4.2 - 15km NW of Ridgecrest, CA"
//
// Geometry coordinates are [longitude, latitude, depth-km].
//
// Missing fields are replaced by defaults rather than propagated: place
// becomes "Unknown location", depth and significance become 0, the title
// becomes "M<mag> earthquake" and a missing time becomes the Unix epoch.
//
// # Open-Meteo Conventions
//
// Forecasts are requested with timezone=UTC. Current conditions carry a
// "2006-01-02T15:04" timestamp; daily values are parallel arrays indexed by
// day, keyed by "2006-01-02" dates. Weather codes follow the WMO 4677 table
// (see [DescribeWeatherCode]). Wind speeds are km/h, temperatures Celsius and
// precipitation millimetres.
//
// # Severity Classification
//
// Severity is a pure function of one category-specific value. The four-level
// scale (low, medium, high, critical) uses editorial thresholds kept in
// [Thresholds] so deployments can tune them:
//
//	Seismic:        magnitude      <4.5 low | <6.0 medium | <7.0 high | >=7.0 critical
//	Wind storm:     max wind km/h  <62 low  | <89 medium  | <118 high | >=118 critical
//	Severe weather: WMO code       <95 low  | 95 medium   | 96 high   | 99 critical
//	Extreme heat:   max temp C     <35 low  | <40 medium  | <45 high  | >=45 critical
//	Extreme cold:   min temp C     >-20 low | >-30 medium | >-40 high | <=-40 critical
//	Flood:          rain mm/day    <50 low  | <100 medium | <150 high | >=150 critical
//
// NaN always classifies as low. Forecast-derived hazards are only emitted once
// they reach medium.
//
// # ID Generation
//
// USGS events keep their upstream feature id. Everything else gets a
// deterministic SHA-256 prefix of category|place|lat|lon|date so that
// re-ingesting the same record replaces the previous event instead of
// duplicating it. See [generateID].
package domain
