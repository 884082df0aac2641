package features

import "fmt"

// The feature schema is the single source of truth for feature names and
// order, shared by the training-data CLI and the live service. Any change
// here retrains the model; the classifier artifact's feature list is checked
// against Names() at startup.

const rawHours = 8

var baseNames = []string{
	"snowfall_last_24h",
	"snowfall_last_12h",
	"snowfall_overnight",
	"snowfall_24h",
	"precipitation_overnight",
	"precipitation_24h",
	"no_snowfall_penalty",
	"freezing_rain",
	"temp_min_overnight",
	"wind_speed_avg_overnight",
	"wind_gusts_max_overnight",
	"dewpoint_avg_overnight",
}

var hourlyNames = []string{
	"temperature",
	"precipitation",
	"snowfall",
	"wind_speed",
	"wind_gusts",
	"weather_code",
}

var (
	schemaNames []string
	schemaIndex map[string]int
)

func init() {
	schemaNames = append(schemaNames, baseNames...)
	for h := 0; h < rawHours; h++ {
		for _, n := range hourlyNames {
			schemaNames = append(schemaNames, fmt.Sprintf("%s%d", n, h))
		}
	}
	schemaIndex = make(map[string]int, len(schemaNames))
	for i, n := range schemaNames {
		schemaIndex[n] = i
	}
}

// Names returns the feature names in vector order.
func Names() []string {
	out := make([]string, len(schemaNames))
	copy(out, schemaNames)
	return out
}

// Count returns the number of features in the schema.
func Count() int {
	return len(schemaNames)
}

// FeatureRow is one built feature vector for a weekday. Rows are never
// mutated after construction; SnowDay is -1 for live (unlabeled) rows and
// downstream code must ignore it.
type FeatureRow struct {
	Date    string
	SnowDay int
	values  []float64
}

func newRow(date string, label int) FeatureRow {
	return FeatureRow{Date: date, SnowDay: label, values: make([]float64, len(schemaNames))}
}

func (r FeatureRow) set(name string, v float64) {
	r.values[schemaIndex[name]] = v
}

// Value returns the named feature's value. The second return is false for
// names outside the schema.
func (r FeatureRow) Value(name string) (float64, bool) {
	i, ok := schemaIndex[name]
	if !ok {
		return 0, false
	}
	return r.values[i], true
}

// Vector returns a copy of the feature values in schema order, suitable as
// classifier input.
func (r FeatureRow) Vector() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}
