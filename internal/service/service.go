// Package service orchestrates the prediction pipeline: weather window,
// feature rows, classifier score, alert fusion, reader-facing labels.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/snowday-predictor/internal/alerts"
	"github.com/kjstillabower/snowday-predictor/internal/explain"
	"github.com/kjstillabower/snowday-predictor/internal/features"
	"github.com/kjstillabower/snowday-predictor/internal/meteo"
	"github.com/kjstillabower/snowday-predictor/internal/model"
	"github.com/kjstillabower/snowday-predictor/internal/models"
	"github.com/kjstillabower/snowday-predictor/internal/observability"
	"github.com/kjstillabower/snowday-predictor/internal/severity"
)

// ErrNoForecastRows means the weather window produced no usable weekday
// rows, so there is nothing to predict.
var ErrNoForecastRows = errors.New("no forecast rows built for the requested week")

// DayPrediction is one entry in the /predict response.
type DayPrediction struct {
	Weekday     string `json:"weekday"`
	Probability int    `json:"snow_day_probability"`
	Alert       string `json:"alert,omitempty"`
}

// PredictionService runs the full pipeline for the upcoming school week.
type PredictionService struct {
	weather    meteo.WindowFetcher
	alerts     alerts.Source
	classifier model.Classifier
	explainer  *explain.Engine
	severity   severity.Table
	builder    *features.Builder
	loc        *time.Location
	startHour  int
	clock      clockwork.Clock
	logger     *zap.Logger
}

// New wires a PredictionService from its collaborators.
func New(
	weather meteo.WindowFetcher,
	alertSource alerts.Source,
	classifier model.Classifier,
	explainer *explain.Engine,
	table severity.Table,
	loc *time.Location,
	startHour int,
	logger *zap.Logger,
) *PredictionService {
	return &PredictionService{
		weather:    weather,
		alerts:     alertSource,
		classifier: classifier,
		explainer:  explainer,
		severity:   table,
		builder:    features.NewBuilder(),
		loc:        loc,
		startHour:  startHour,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
}

// SetClock swaps the time source (tests).
func (s *PredictionService) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Predict returns fused snow-day probabilities for the next five school
// days at the coordinate. Alert-feed failure degrades to raw model
// probabilities rather than failing the request.
func (s *PredictionService) Predict(ctx context.Context, lat, lon float64) ([]DayPrediction, error) {
	rows, err := s.weekRows(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	active := s.activeAlerts(ctx, lat, lon)

	today := s.clock.Now().In(s.loc)
	out := make([]DayPrediction, 0, len(rows))
	for _, row := range rows {
		raw, err := s.classifier.PredictProba(row.Vector())
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", row.Date, err)
		}
		pct := int(math.Round(raw * 100))

		pred := DayPrediction{
			Weekday:     s.describeDay(row.Date, today),
			Probability: pct,
		}
		if len(active) > 0 {
			fused, err := s.severity.Fuse(pct, active)
			if err != nil {
				// An unregistered floor is a config gap in that one alert;
				// the rest still fuse.
				s.logger.Error("severity fusion incomplete", zap.String("date", row.Date), zap.Error(err))
			}
			pred.Probability = fused.Probability
			if fused.Alert != nil {
				pred.Alert = fused.Alert.Type
				observability.SeverityFloorAppliedTotal.WithLabelValues(fused.Alert.Type).Inc()
			}
		}
		out = append(out, pred)
	}
	observability.PredictionsTotal.Inc()
	return out, nil
}

// Explain returns the humanized reasons behind the nearest school day's
// prediction. Reasons with no displayable phrase are already filtered by
// the engine.
func (s *PredictionService) Explain(ctx context.Context, lat, lon float64) ([]explain.Reason, error) {
	rows, err := s.weekRows(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	return s.explainer.Explain(rows[0].Vector())
}

// weekRows fetches the forecast window for the next five school days and
// builds their feature rows.
func (s *PredictionService) weekRows(ctx context.Context, lat, lon float64) ([]features.FeatureRow, error) {
	dates := s.weekDates()
	start, end := dates[0], dates[len(dates)-1]

	window, err := s.weather.FetchWindow(ctx, meteo.WindowQuery{
		Latitude:  lat,
		Longitude: lon,
		Start:     start,
		End:       end,
		Forecast:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch forecast window: %w", err)
	}

	rows := s.builder.BuildRange(window, start, end)
	if len(rows) == 0 {
		return nil, ErrNoForecastRows
	}
	return rows, nil
}

// weekDates returns the next five school days in the local timezone. Before
// the school-start hour today is still decidable and leads the list;
// afterwards the week starts tomorrow.
func (s *PredictionService) weekDates() []time.Time {
	now := s.clock.Now().In(s.loc)
	current := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if now.Hour() >= s.startHour {
		current = current.AddDate(0, 0, 1)
	}

	var dates []time.Time
	for len(dates) < 5 {
		if wd := current.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, current)
		}
		current = current.AddDate(0, 0, 1)
	}
	return dates
}

// activeAlerts returns the alerts covering the point, or nil on failure.
func (s *PredictionService) activeAlerts(ctx context.Context, lat, lon float64) []models.Alert {
	active, err := s.alerts.AlertsForCoordinates(ctx, lat, lon)
	if err != nil {
		s.logger.Warn("alert fetch failed, serving raw probabilities", zap.Error(err))
		return nil
	}
	return active
}

// describeDay renders a YYYY-MM-DD date relative to today.
func (s *PredictionService) describeDay(date string, today time.Time) string {
	d, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return date
	}
	todayMidnight := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc)
	switch diff := int(d.Sub(todayMidnight).Hours() / 24); diff {
	case 0:
		return "Today"
	case 1:
		return "Tomorrow"
	default:
		return d.Weekday().String()
	}
}
