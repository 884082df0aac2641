// Package explain turns per-feature model attributions into the short list
// of human-readable reasons the API returns alongside a prediction.
package explain

import (
	"fmt"
	"math"
	"strings"

	"github.com/kjstillabower/snowday-predictor/internal/model"
)

// Reason is one explanation item: which feature pushed the prediction,
// how hard, and what its value means in plain language.
type Reason struct {
	Feature   string  `json:"feature"`
	Impact    float64 `json:"impact"`
	Value     float64 `json:"value"`
	Humanized string  `json:"humanized_value"`
}

// Engine scores a feature row and selects the strongest reason from each of
// three factor groups: snow and precipitation, wind, everything else.
type Engine struct {
	classifier model.Classifier
	table      Table
}

// NewEngine builds an Engine over a classifier and a humanization table.
func NewEngine(classifier model.Classifier, table Table) *Engine {
	return &Engine{classifier: classifier, table: table}
}

type candidate struct {
	feature string
	impact  float64
	value   float64
}

// Explain returns up to three reasons for a prediction, ordered snow,
// wind, other. vector must be in the classifier's feature order. Raw
// per-hour weather codes are categorical and make poor prose, so they are
// excluded. Only features that pushed the prediction up qualify; a quiet
// group contributes nothing.
func (e *Engine) Explain(vector []float64) ([]Reason, error) {
	contribs, err := e.classifier.Attributions(vector)
	if err != nil {
		return nil, fmt.Errorf("compute attributions: %w", err)
	}

	names := e.classifier.FeatureNames()
	var snow, wind, other *candidate
	for i, name := range names {
		if strings.HasPrefix(name, "weather_code") {
			continue
		}
		c := candidate{feature: name, impact: contribs[i], value: vector[i]}
		switch {
		case strings.Contains(name, "snow") || strings.Contains(name, "precip"):
			snow = stronger(snow, c)
		case strings.Contains(name, "wind"):
			wind = stronger(wind, c)
		default:
			other = stronger(other, c)
		}
	}

	var reasons []Reason
	for _, c := range []*candidate{snow, wind, other} {
		if c == nil || c.impact <= 0 {
			continue
		}
		humanized, ok := e.table.Humanize(c.feature, c.value)
		if !ok {
			continue
		}
		reasons = append(reasons, Reason{
			Feature:   c.feature,
			Impact:    round(c.impact, 3),
			Value:     round(c.value, 2),
			Humanized: humanized,
		})
	}
	return reasons, nil
}

func stronger(best *candidate, c candidate) *candidate {
	if best == nil || c.impact > best.impact {
		return &c
	}
	return best
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
