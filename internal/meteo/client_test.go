package meteo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const sampleResponse = `{
  "hourly": {
    "time": ["2026-01-14T00:00", "2026-01-14T01:00", "2026-01-14T02:00"],
    "temperature_2m": [-5.2, -5.8, null],
    "dew_point_2m": [-8.1, -8.3, -8.5],
    "relative_humidity_2m": [85, 86, 87],
    "precipitation": [0.0, 0.1, 0.2],
    "snowfall": [0.5, 0.7, null],
    "snow_depth": [0.1, 0.1, 0.1],
    "weather_code": [71, 73, 71],
    "wind_speed_10m": [12.0, 14.0, 13.0],
    "wind_gusts_10m": [30.0, 33.0, 31.0]
  },
  "daily": {
    "time": ["2026-01-14"],
    "temperature_2m_min": [-6.5],
    "wind_gusts_10m_max": [42.0],
    "snowfall_sum": [4.2],
    "precipitation_sum": [1.1]
  }
}`

func newTestClient(t *testing.T, archiveURL, forecastURL string) *OpenMeteoClient {
	t.Helper()
	c, err := NewOpenMeteoClient(archiveURL, forecastURL, 5*time.Second, 3, time.Millisecond, 5*time.Millisecond, time.UTC)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}

func window(t *testing.T, c *OpenMeteoClient, q WindowQuery) error {
	t.Helper()
	_, err := c.FetchWindow(context.Background(), q)
	return err
}

func TestFetchWindowParsesResponse(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"start_date": r.URL.Query().Get("start_date"),
			"end_date":   r.URL.Query().Get("end_date"),
			"timezone":   r.URL.Query().Get("timezone"),
		}
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	start := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	win, err := c.FetchWindow(context.Background(), WindowQuery{
		Latitude: 44.5, Longitude: -80.5, Start: start, End: start, Forecast: true,
	})
	if err != nil {
		t.Fatalf("FetchWindow() error = %v", err)
	}

	if gotQuery["start_date"] != "2026-01-14" || gotQuery["end_date"] != "2026-01-14" {
		t.Errorf("date params = %v", gotQuery)
	}
	if gotQuery["timezone"] != "UTC" {
		t.Errorf("timezone param = %q, want UTC", gotQuery["timezone"])
	}

	if len(win.Hourly.Time) != 3 {
		t.Fatalf("hourly hours = %d, want 3", len(win.Hourly.Time))
	}
	if win.Hourly.Temperature[2] != nil {
		t.Error("null observation must decode as nil, not zero")
	}
	if win.Hourly.Snowfall[0] == nil || *win.Hourly.Snowfall[0] != 0.5 {
		t.Error("snowfall[0] not decoded")
	}
	daily := win.DailyForDate(start)
	if daily == nil || daily.TemperatureMin == nil || *daily.TemperatureMin != -6.5 {
		t.Error("daily aggregates not decoded")
	}
}

func TestFetchWindowRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	start := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	if err := window(t, c, WindowQuery{Start: start, End: start, Forecast: true}); err != nil {
		t.Fatalf("FetchWindow() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("upstream calls = %d, want 3", calls)
	}
}

func TestFetchWindowExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	start := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	err := window(t, c, WindowQuery{Start: start, End: start, Forecast: true})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("error = %v, want ErrUpstreamFailure", err)
	}
}

func TestFetchWindowRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	start := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	err := window(t, c, WindowQuery{Start: start, End: start, Forecast: true})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
}

func TestFetchWindowMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{not json")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	start := time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)
	err := window(t, c, WindowQuery{Start: start, End: start, Forecast: true})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestHistoricalEndClampedToYesterday(t *testing.T) {
	var gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEnd = r.URL.Query().Get("end_date")
		fmt.Fprint(w, sampleResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, srv.URL)
	c.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))

	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	if err := window(t, c, WindowQuery{Start: start, End: end}); err != nil {
		t.Fatalf("FetchWindow() error = %v", err)
	}
	if gotEnd != "2026-01-14" {
		t.Errorf("end_date = %q, want 2026-01-14 (yesterday)", gotEnd)
	}
}

func TestHistoricalRangeEmptyAfterClamping(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid", "http://unused.invalid")
	c.SetClock(clockwork.NewFakeClockAt(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)))

	// Entirely in the future: nothing survives the clamp.
	start := time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC)
	err := window(t, c, WindowQuery{Start: start, End: end})
	if !errors.Is(err, ErrEmptyRange) {
		t.Fatalf("error = %v, want ErrEmptyRange", err)
	}
}

func TestNewOpenMeteoClientValidation(t *testing.T) {
	if _, err := NewOpenMeteoClient("", "http://x", time.Second, 1, 0, 0, time.UTC); err == nil {
		t.Error("missing archive URL accepted")
	}
	if _, err := NewOpenMeteoClient("http://x", "http://y", time.Second, 1, 0, 0, nil); err == nil {
		t.Error("nil timezone accepted")
	}
}
