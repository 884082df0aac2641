package models

import "time"

// HourlySeries holds parallel hourly observation arrays as returned by the
// weather provider. A nil entry means the provider reported no observation
// for that hour; zero-coercion happens in the feature builder, not here.
type HourlySeries struct {
	Time             []time.Time
	Temperature      []*float64
	DewPoint         []*float64
	RelativeHumidity []*float64
	Precipitation    []*float64
	Snowfall         []*float64
	SnowDepth        []*float64
	WeatherCode      []*float64
	WindSpeed        []*float64
	WindGusts        []*float64
}

// DailySeries holds parallel daily aggregate arrays.
type DailySeries struct {
	Time             []time.Time
	TemperatureMin   []*float64
	WindGustsMax     []*float64
	SnowfallSum      []*float64
	PrecipitationSum []*float64
}

// WeatherWindow is a fetched time series covering every calendar day in a
// requested range for one location, at hourly and daily granularity.
// Timestamps are already aligned to the location's local timezone.
type WeatherWindow struct {
	Latitude  float64
	Longitude float64
	Hourly    HourlySeries
	Daily     DailySeries
}

// DaySlice is the hourly data belonging to a single local calendar date.
type DaySlice struct {
	Temperature   []*float64
	DewPoint      []*float64
	Precipitation []*float64
	Snowfall      []*float64
	WeatherCode   []*float64
	WindSpeed     []*float64
	WindGusts     []*float64
}

// DayAggregates is the daily row belonging to a single local calendar date.
type DayAggregates struct {
	TemperatureMin   *float64
	WindGustsMax     *float64
	SnowfallSum      *float64
	PrecipitationSum *float64
}

const dateLayout = "2006-01-02"

// HourlyForDate slices the hourly series to the hours whose local calendar
// date matches date. Returns nil when the window holds no hours for that
// date; callers treat that as a provider gap and skip the day.
func (w *WeatherWindow) HourlyForDate(date time.Time) *DaySlice {
	want := date.Format(dateLayout)
	s := &DaySlice{}
	found := false
	for i, ts := range w.Hourly.Time {
		if ts.Format(dateLayout) != want {
			continue
		}
		found = true
		s.Temperature = append(s.Temperature, at(w.Hourly.Temperature, i))
		s.DewPoint = append(s.DewPoint, at(w.Hourly.DewPoint, i))
		s.Precipitation = append(s.Precipitation, at(w.Hourly.Precipitation, i))
		s.Snowfall = append(s.Snowfall, at(w.Hourly.Snowfall, i))
		s.WeatherCode = append(s.WeatherCode, at(w.Hourly.WeatherCode, i))
		s.WindSpeed = append(s.WindSpeed, at(w.Hourly.WindSpeed, i))
		s.WindGusts = append(s.WindGusts, at(w.Hourly.WindGusts, i))
	}
	if !found {
		return nil
	}
	return s
}

// DailyForDate returns the daily aggregates for the given local calendar
// date, or nil when the window holds no daily row for it.
func (w *WeatherWindow) DailyForDate(date time.Time) *DayAggregates {
	want := date.Format(dateLayout)
	for i, ts := range w.Daily.Time {
		if ts.Format(dateLayout) != want {
			continue
		}
		return &DayAggregates{
			TemperatureMin:   at(w.Daily.TemperatureMin, i),
			WindGustsMax:     at(w.Daily.WindGustsMax, i),
			SnowfallSum:      at(w.Daily.SnowfallSum, i),
			PrecipitationSum: at(w.Daily.PrecipitationSum, i),
		}
	}
	return nil
}

// at guards against a provider array shorter than the time array.
func at(vals []*float64, i int) *float64 {
	if i >= len(vals) {
		return nil
	}
	return vals[i]
}
