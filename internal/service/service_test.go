package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/snowday-predictor/internal/explain"
	"github.com/kjstillabower/snowday-predictor/internal/features"
	"github.com/kjstillabower/snowday-predictor/internal/meteo"
	"github.com/kjstillabower/snowday-predictor/internal/models"
	"github.com/kjstillabower/snowday-predictor/internal/severity"
)

type fakeWeather struct {
	lastQuery meteo.WindowQuery
	window    *models.WeatherWindow
	err       error
}

func (f *fakeWeather) FetchWindow(_ context.Context, q meteo.WindowQuery) (*models.WeatherWindow, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return f.window, nil
}

type fakeAlerts struct {
	alerts []models.Alert
	err    error
}

func (f *fakeAlerts) AlertsForCoordinates(context.Context, float64, float64) ([]models.Alert, error) {
	return f.alerts, f.err
}

type fakeClassifier struct {
	proba float64
}

func (f *fakeClassifier) FeatureNames() []string { return features.Names() }

func (f *fakeClassifier) PredictProba([]float64) (float64, error) { return f.proba, nil }

func (f *fakeClassifier) Attributions(vector []float64) ([]float64, error) {
	out := make([]float64, len(vector))
	for i, name := range features.Names() {
		if name == "snowfall_overnight" {
			out[i] = 0.2
		}
	}
	return out, nil
}

func fp(v float64) *float64 { return &v }

// forecastWindow covers [start, end] with constant hourly snowfall.
func forecastWindow(start, end time.Time, snowPerHour float64) *models.WeatherWindow {
	win := &models.WeatherWindow{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		for h := 0; h < 24; h++ {
			win.Hourly.Time = append(win.Hourly.Time, d.Add(time.Duration(h)*time.Hour))
			win.Hourly.Temperature = append(win.Hourly.Temperature, fp(-5))
			win.Hourly.DewPoint = append(win.Hourly.DewPoint, fp(-8))
			win.Hourly.Precipitation = append(win.Hourly.Precipitation, fp(0))
			win.Hourly.Snowfall = append(win.Hourly.Snowfall, fp(snowPerHour))
			win.Hourly.WeatherCode = append(win.Hourly.WeatherCode, fp(71))
			win.Hourly.WindSpeed = append(win.Hourly.WindSpeed, fp(10))
			win.Hourly.WindGusts = append(win.Hourly.WindGusts, fp(20))
		}
		win.Daily.Time = append(win.Daily.Time, d)
		win.Daily.TemperatureMin = append(win.Daily.TemperatureMin, fp(-6))
		win.Daily.WindGustsMax = append(win.Daily.WindGustsMax, fp(25))
		win.Daily.SnowfallSum = append(win.Daily.SnowfallSum, fp(snowPerHour*24))
		win.Daily.PrecipitationSum = append(win.Daily.PrecipitationSum, fp(0))
	}
	return win
}

// newTestService wires a PredictionService over fakes, frozen at now (UTC).
func newTestService(t *testing.T, now time.Time, weather *fakeWeather, alertSrc *fakeAlerts, proba float64) *PredictionService {
	t.Helper()
	classifier := &fakeClassifier{proba: proba}
	engine := explain.NewEngine(classifier, explain.DefaultTable())
	svc := New(weather, alertSrc, classifier, engine, severity.DefaultTable(), time.UTC, 7, zap.NewNop())
	svc.SetClock(clockwork.NewFakeClockAt(now))
	return svc
}

func TestPredictWeekStartsTomorrowAfterStartHour(t *testing.T) {
	// Thursday 2026-01-15, 09:00: the week is Fri, Mon, Tue, Wed, Thu.
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0)}

	svc := newTestService(t, now, weather, &fakeAlerts{}, 0.12)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	require.Len(t, preds, 5)

	assert.Equal(t, "Tomorrow", preds[0].Weekday)
	assert.Equal(t, "Monday", preds[1].Weekday)
	assert.Equal(t, "Thursday", preds[4].Weekday)
	for _, p := range preds {
		assert.Equal(t, 12, p.Probability)
		assert.Empty(t, p.Alert)
	}

	assert.True(t, weather.lastQuery.Forecast)
	assert.Equal(t, start, weather.lastQuery.Start)
	assert.Equal(t, end, weather.lastQuery.End)
}

func TestPredictWeekIncludesTodayBeforeStartHour(t *testing.T) {
	// Thursday 05:00: today is still decidable.
	now := time.Date(2026, time.January, 15, 5, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 21, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0)}

	svc := newTestService(t, now, weather, &fakeAlerts{}, 0.12)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	require.Len(t, preds, 5)
	assert.Equal(t, "Today", preds[0].Weekday)
	assert.Equal(t, "Tomorrow", preds[1].Weekday)
}

func TestPredictAppliesSeverityFloor(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0.5)}
	alertSrc := &fakeAlerts{alerts: []models.Alert{{Type: "Freezing Rain Warning"}}}

	svc := newTestService(t, now, weather, alertSrc, 0.40)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	for _, p := range preds {
		assert.Equal(t, 99, p.Probability)
		assert.Equal(t, "Freezing Rain Warning", p.Alert)
	}
}

func TestPredictAlertFailureDegradesToRaw(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0.5)}
	alertSrc := &fakeAlerts{err: errors.New("feed down")}

	svc := newTestService(t, now, weather, alertSrc, 0.40)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err, "alert feed failure must not fail the request")
	for _, p := range preds {
		assert.Equal(t, 40, p.Probability)
		assert.Empty(t, p.Alert)
	}
}

func TestPredictUnregisteredAlertFallsBackToRaw(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0)}
	alertSrc := &fakeAlerts{alerts: []models.Alert{{Type: "Locust Swarm Warning"}}}

	svc := newTestService(t, now, weather, alertSrc, 0.40)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	for _, p := range preds {
		assert.Equal(t, 40, p.Probability)
		assert.Empty(t, p.Alert)
	}
}

func TestPredictUnregisteredAlertDoesNotSuppressRegisteredFloor(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 0.5)}
	// A pass-through bulletin alongside a registered warning.
	alertSrc := &fakeAlerts{alerts: []models.Alert{
		{Type: "Special Air Quality Statement"},
		{Type: "Freezing Rain Warning"},
	}}

	svc := newTestService(t, now, weather, alertSrc, 0.40)
	preds, err := svc.Predict(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	for _, p := range preds {
		assert.Equal(t, 99, p.Probability)
		assert.Equal(t, "Freezing Rain Warning", p.Alert)
	}
}

func TestPredictWeatherFailure(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	weather := &fakeWeather{err: meteo.ErrUpstreamFailure}

	svc := newTestService(t, now, weather, &fakeAlerts{}, 0.40)
	_, err := svc.Predict(context.Background(), 44.5, -80.5)
	assert.ErrorIs(t, err, meteo.ErrUpstreamFailure)
}

func TestPredictNoRows(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: &models.WeatherWindow{}}

	svc := newTestService(t, now, weather, &fakeAlerts{}, 0.40)
	_, err := svc.Predict(context.Background(), 44.5, -80.5)
	assert.ErrorIs(t, err, ErrNoForecastRows)
}

func TestExplainNearestDay(t *testing.T) {
	now := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.January, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.January, 22, 0, 0, 0, 0, time.UTC)
	weather := &fakeWeather{window: forecastWindow(start, end, 1)}

	svc := newTestService(t, now, weather, &fakeAlerts{}, 0.40)
	reasons, err := svc.Explain(context.Background(), 44.5, -80.5)
	require.NoError(t, err)
	require.Len(t, reasons, 1)
	assert.Equal(t, "snowfall_overnight", reasons[0].Feature)
	assert.Equal(t, "Heavy Overnight Snowfall", reasons[0].Humanized)
}
