// Package severity fuses a model's raw probability with active weather
// alerts. Each alert type carries a floor: the minimum probability the
// service will report while that alert is in effect.
package severity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

// ErrUnknownAlertType reports an alert type with no registered floor.
var ErrUnknownAlertType = errors.New("no severity floor registered for alert type")

// Table maps canonical alert labels to probability floors in [0, 100].
type Table map[string]int

// DefaultTable holds the floors for every alert type the feed's
// canonical dictionary can produce.
func DefaultTable() Table {
	return Table{
		"Weather Advisory":          55,
		"Fog Advisory":              35,
		"Extreme Cold Warning":      70,
		"Freezing Drizzle Advisory": 75,
		"Freezing Rain Warning":     99,
		"Arctic Outflow Warning":    80,
		"Snowfall Warning":          85,
		"Blowing Snow Advisory":     70,
		"Winter Storm Watch":        90,
		"Snow Squall Warning":       95,
	}
}

// Validate checks that every label has a floor in range. Run at startup
// against the alert dictionary so a gap fails deployment, not a request.
func (t Table) Validate(labels []string) error {
	var errs []error
	for _, label := range labels {
		floor, ok := t[label]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownAlertType, label))
			continue
		}
		if floor < 0 || floor > 100 {
			errs = append(errs, fmt.Errorf("floor for %q out of range: %d", label, floor))
		}
	}
	return errors.Join(errs...)
}

// Floor returns the probability floor for an alert type.
func (t Table) Floor(alertType string) (int, error) {
	floor, ok := t[alertType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAlertType, alertType)
	}
	return floor, nil
}

// Result is a fused probability and the alert that raised it, if any.
type Result struct {
	Probability int
	Alert       *models.Alert
}

// Fuse lifts the raw probability to the highest floor among the active
// alerts. The raw value wins when it already exceeds every floor. When two
// alerts share the winning floor the one appearing first in the input wins,
// so callers get a deterministic attribution. An unregistered alert type
// contributes no floor and is reported in the returned error; the result is
// still the fusion over the registered alerts, so one unmapped bulletin
// never suppresses a known warning's floor.
func (t Table) Fuse(rawPct int, alerts []models.Alert) (Result, error) {
	result := Result{Probability: rawPct}

	var errs []error
	for i := range alerts {
		floor, err := t.Floor(alerts[i].Type)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if floor > result.Probability {
			result.Probability = floor
			result.Alert = &alerts[i]
		}
	}
	return result, errors.Join(errs...)
}

// Labels returns the registered alert labels, sorted.
func (t Table) Labels() []string {
	out := make([]string, 0, len(t))
	for label := range t {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}
