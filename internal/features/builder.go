package features

import (
	"fmt"
	"time"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

const (
	// overnightHours is the primary predictive window, roughly
	// midnight-8am local.
	overnightHours = 8

	// freezingRainScanHours is how far into the day condition codes are
	// scanned for the freezing-rain flag.
	freezingRainScanHours = 17
)

// freezingRainCodes are the provider condition codes for drizzle, rain and
// freezing rain. A code match alone is not enough; the day's minimum
// temperature must also sit in [-2, 1].
var freezingRainCodes = map[int]struct{}{
	51: {}, 53: {}, 55: {}, 61: {}, 63: {}, 65: {}, 66: {}, 67: {},
}

// Builder converts a fetched weather window into feature rows. With a
// calendar attached, rows carry the historical snow-day label; without one,
// rows are unlabeled (SnowDay = -1) for live inference.
type Builder struct {
	calendar *SnowDayCalendar
}

// NewBuilder returns a Builder for live inference rows.
func NewBuilder() *Builder {
	return &Builder{}
}

// NewTrainingBuilder returns a Builder that labels rows from the calendar.
func NewTrainingBuilder(cal *SnowDayCalendar) *Builder {
	return &Builder{calendar: cal}
}

// BuildRange produces one FeatureRow per weekday in [start, end] inclusive.
// Weekend dates and dates with no hourly data in the window are skipped.
// The previous day's snowfall profile is carried across iterations for the
// trailing-window features; the first day in a window has no carry.
func (b *Builder) BuildRange(win *models.WeatherWindow, start, end time.Time) []FeatureRow {
	var rows []FeatureRow
	var prevSnow []*float64

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		slice := win.HourlyForDate(d)
		if slice == nil {
			// Provider gap: no row, and no stale carry into the next day.
			prevSnow = nil
			continue
		}
		if isWeekend(d) {
			prevSnow = slice.Snowfall
			continue
		}
		rows = append(rows, b.buildDay(d, slice, win.DailyForDate(d), prevSnow))
		prevSnow = slice.Snowfall
	}
	return rows
}

func (b *Builder) buildDay(date time.Time, slice *models.DaySlice, daily *models.DayAggregates, prevSnow []*float64) FeatureRow {
	dateStr := date.Format("2006-01-02")

	label := -1
	if b.calendar != nil {
		label = b.calendar.Label(dateStr)
	}
	row := newRow(dateStr, label)

	snowfallOvernight := safeSum(head(slice.Snowfall, overnightHours))
	snowfall24h := safeSum(slice.Snowfall)

	row.set("snowfall_overnight", snowfallOvernight)
	row.set("snowfall_24h", snowfall24h)
	row.set("precipitation_overnight", safeSum(head(slice.Precipitation, overnightHours)))
	row.set("precipitation_24h", safeSum(slice.Precipitation))

	// Trailing windows splice the tail of yesterday's profile onto this
	// morning: hours [7:] of yesterday for the 24h window, [20:] for 12h.
	if prevSnow != nil {
		row.set("snowfall_last_24h", safeSum(tail(prevSnow, 7))+snowfallOvernight)
		row.set("snowfall_last_12h", safeSum(tail(prevSnow, 20))+snowfallOvernight)
	}

	row.set("no_snowfall_penalty", noSnowfallPenalty(snowfall24h, snowfallOvernight))
	row.set("freezing_rain", boolFeature(freezingRain(slice.WeatherCode, daily)))

	if daily != nil {
		row.set("temp_min_overnight", coerce(daily.TemperatureMin))
		row.set("wind_gusts_max_overnight", coerce(daily.WindGustsMax))
	}
	row.set("wind_speed_avg_overnight", safeMean(head(slice.WindSpeed, overnightHours)))
	row.set("dewpoint_avg_overnight", safeMean(head(slice.DewPoint, overnightHours)))

	for h := 0; h < rawHours; h++ {
		row.set(fmt.Sprintf("temperature%d", h), hourValue(slice.Temperature, h))
		row.set(fmt.Sprintf("precipitation%d", h), hourValue(slice.Precipitation, h))
		row.set(fmt.Sprintf("snowfall%d", h), hourValue(slice.Snowfall, h))
		row.set(fmt.Sprintf("wind_speed%d", h), hourValue(slice.WindSpeed, h))
		row.set(fmt.Sprintf("wind_gusts%d", h), hourValue(slice.WindGusts, h))
		row.set(fmt.Sprintf("weather_code%d", h), hourValue(slice.WeatherCode, h))
	}
	return row
}

// noSnowfallPenalty is a monotonic ordinal: 2 when the 24h total is exactly
// zero, 1 when overnight snowfall is under one unit, else 0.
func noSnowfallPenalty(snowfall24h, snowfallOvernight float64) float64 {
	switch {
	case snowfall24h == 0:
		return 2
	case snowfallOvernight < 1:
		return 1
	default:
		return 0
	}
}

// freezingRain is true iff any condition code in the first 17 hours is in
// the freezing/rain set and the day's minimum temperature lies in [-2, 1].
// A missing daily minimum fails the plausibility filter.
func freezingRain(codes []*float64, daily *models.DayAggregates) bool {
	if daily == nil || daily.TemperatureMin == nil {
		return false
	}
	tmin := *daily.TemperatureMin
	if tmin < -2 || tmin > 1 {
		return false
	}
	for _, c := range head(codes, freezingRainScanHours) {
		if c == nil {
			continue
		}
		if _, ok := freezingRainCodes[int(*c)]; ok {
			return true
		}
	}
	return false
}

func isWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// safeSum sums the non-nil values; an empty or all-nil input yields 0.
func safeSum(vals []*float64) float64 {
	var sum float64
	for _, v := range vals {
		if v != nil {
			sum += *v
		}
	}
	return sum
}

// safeMean averages the non-nil values; an empty or all-nil input yields 0.
func safeMean(vals []*float64) float64 {
	var sum float64
	var n int
	for _, v := range vals {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func head(vals []*float64, n int) []*float64 {
	if len(vals) < n {
		return vals
	}
	return vals[:n]
}

func tail(vals []*float64, from int) []*float64 {
	if len(vals) <= from {
		return nil
	}
	return vals[from:]
}

func hourValue(vals []*float64, h int) float64 {
	if h >= len(vals) || vals[h] == nil {
		return 0
	}
	return *vals[h]
}

func coerce(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
