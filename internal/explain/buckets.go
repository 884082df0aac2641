package explain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Bucket maps the upper bound of a value range to a reader-facing label.
// Buckets are evaluated in order; the first with value <= Threshold wins.
// An empty label means the value carries no story worth telling and the
// reason is suppressed.
type Bucket struct {
	Threshold float64
	Label     string
}

// Table maps base feature names to their bucket ladders. Hourly features
// share the ladder of their base name: "snowfall3" uses "snowfall".
type Table map[string][]Bucket

// DefaultTable returns the humanization ladders for every feature family
// the schema produces. Units follow the upstream weather provider: snowfall
// and snow depth in cm, precipitation in mm, temperature and dew point in
// Celsius, wind in km/h.
func DefaultTable() Table {
	return Table{
		"snowfall": {
			{0, "No Snowfall"},
			{2, "Light Snowfall"},
			{7, "Moderate Snowfall"},
			{15, "Heavy Snowfall"},
			{999, "Extreme Snowfall"},
		},
		"snowfall_overnight": {
			{0, "No Overnight Snowfall"},
			{2, "Light Overnight Snowfall"},
			{7, "Moderate Overnight Snowfall"},
			{15, "Heavy Overnight Snowfall"},
			{999, "Extreme Overnight Snowfall"},
		},
		"snowfall_24h": {
			{0, "No Snowfall (Daily Total)"},
			{5, "Light Snowfall (Daily Total)"},
			{15, "Moderate Snowfall (Daily Total)"},
			{30, "Heavy Snowfall (Daily Total)"},
			{999, "Extreme Snowfall (Daily Total)"},
		},
		"snowfall_last_24h": {
			{0, "No Snowfall (past 24h)"},
			{5, "Light Snowfall (past 24h)"},
			{15, "Moderate Snowfall (past 24h)"},
			{30, "Heavy Snowfall (past 24h)"},
			{999, "Extreme Snowfall (past 24h)"},
		},
		"snowfall_last_12h": {
			{0, "No Snowfall (past 12h)"},
			{5, "Light Snowfall (past 12h)"},
			{15, "Moderate Snowfall (past 12h)"},
			{30, "Heavy Snowfall (past 12h)"},
			{999, "Extreme Snowfall (past 12h)"},
		},
		"snow_depth": {
			{0, "No Snow Accumulation"},
			{10, "Notable Snow Accumulation"},
			{25, "Deep Snow Accumulation"},
			{999, "Extreme Snow Accumulation"},
		},
		"precipitation": {
			{0, "No Precipitation"},
			{2, "Light Precipitation"},
			{8, "Moderate Precipitation"},
			{999, "Heavy Precipitation"},
		},
		"precipitation_overnight": {
			{0, "No Overnight Precipitation"},
			{2, "Light Overnight Precipitation"},
			{8, "Moderate Overnight Precipitation"},
			{999, "Heavy Overnight Precipitation"},
		},
		"precipitation_24h": {
			{0, "No Precipitation (24h)"},
			{5, "Light Precipitation (24h)"},
			{15, "Moderate Precipitation (24h)"},
			{999, "Heavy Precipitation (24h)"},
		},
		"temperature": {
			{-25, "Extreme Cold Temperatures"},
			{-15, "Very Cold Temperatures"},
			{-8, "Cold Temperatures"},
			{-2, "Near Freezing Temperatures"},
			{999, "Above Freezing Temperatures"},
		},
		"temp_min_overnight": {
			{-25, "Extreme Overnight Cold"},
			{-15, "Very Cold Overnight Temperatures"},
			{-8, "Cold Overnight Temperatures"},
			{-2, "Near Freezing Overnight Temperatures"},
			{999, "Mild Overnight Temperatures"},
		},
		"wind_speed": {
			{10, "Calm Wind Speeds"},
			{25, "Breezy Wind Speeds"},
			{40, "Strong Wind Speeds"},
			{60, "Very Strong Wind Speeds"},
			{999, "Extreme Wind Speeds"},
		},
		"wind_speed_avg_overnight": {
			{10, "Calm Overnight Winds"},
			{25, "Breezy Overnight Winds"},
			{40, "Strong Overnight Winds"},
			{60, "Very Strong Overnight Winds"},
			{999, "Extreme Overnight Winds"},
		},
		"wind_gusts": {
			{20, "Light Wind Gusts"},
			{40, "Strong Wind Gusts"},
			{70, "Severe Wind Gusts"},
			{999, "Extreme Wind Gusts"},
		},
		"wind_gusts_max_overnight": {
			{20, "Light Overnight Wind Gusts"},
			{40, "Strong Overnight Wind Gusts"},
			{70, "Severe Overnight Wind Gusts"},
			{999, "Extreme Overnight Wind Gusts"},
		},
		"dewpoint_avg_overnight": {
			{-15, "Extremely Dry Overnight Air"},
			{-5, "Dry Overnight Air"},
			{0, "Near Freezing Dew Point"},
			{999, "Moist Overnight Air"},
		},
		"freezing_rain": {
			{0, "No Freezing Rain"},
			{1, "Freezing Rain Conditions"},
		},
		"no_snowfall_penalty": {
			{0, ""}, // no penalty, nothing to say
			{1, "No Snowfall Overnight"},
			{2, "No Snowfall (24h)"},
		},
	}
}

// Validate checks every ladder has strictly ascending thresholds so lookup
// order is well defined. Run at startup.
func (t Table) Validate() error {
	var errs []error
	for name, buckets := range t {
		if len(buckets) == 0 {
			errs = append(errs, fmt.Errorf("feature %q has an empty bucket ladder", name))
			continue
		}
		for i := 1; i < len(buckets); i++ {
			if buckets[i].Threshold <= buckets[i-1].Threshold {
				errs = append(errs, fmt.Errorf("feature %q thresholds not ascending at %v", name, buckets[i].Threshold))
			}
		}
	}
	return errors.Join(errs...)
}

// Humanize turns a feature name and raw value into a reader-facing label.
// Hourly features end in a digit; the digit picks the hour suffix and the
// remainder picks the ladder. The second return is false when the feature
// has no ladder or the matched bucket is deliberately silent.
func (t Table) Humanize(feature string, value float64) (string, bool) {
	base := feature
	hour := -1
	if last := feature[len(feature)-1:]; len(feature) > 1 {
		if h, err := strconv.Atoi(last); err == nil {
			hour = h
			base = feature[:len(feature)-1]
		}
	}

	buckets, ok := t[base]
	if !ok {
		return "", false
	}
	for _, b := range buckets {
		if value <= b.Threshold {
			if b.Label == "" {
				return "", false
			}
			if hour < 0 {
				return b.Label, true
			}
			display := hour
			if display == 0 {
				display = 12
			}
			return fmt.Sprintf("%s (%d am)", b.Label, display), true
		}
	}
	return "", false
}

// HasLadder reports whether a base feature name is known to the table.
func (t Table) HasLadder(feature string) bool {
	_, ok := t[strings.TrimRight(feature, "0123456789")]
	return ok
}
