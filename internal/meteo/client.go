package meteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/snowday-predictor/internal/circuitbreaker"
	"github.com/kjstillabower/snowday-predictor/internal/models"
	"github.com/kjstillabower/snowday-predictor/internal/observability"
)

// WindowFetcher retrieves a weather window for a location and date range.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, q WindowQuery) (*models.WeatherWindow, error)
}

// WindowQuery selects the location, the inclusive date range, and whether
// the forecast or the historical archive endpoint serves it.
type WindowQuery struct {
	Latitude  float64
	Longitude float64
	Start     time.Time
	End       time.Time
	Forecast  bool
}

var (
	ErrUpstreamFailure   = errors.New("weather upstream failure")
	ErrRateLimited       = errors.New("weather rate limited")
	ErrMalformedResponse = errors.New("malformed weather response")
	// ErrEmptyRange is returned when clamping a historical query to
	// yesterday leaves nothing to fetch.
	ErrEmptyRange = errors.New("date range is empty after clamping")
)

// Fixed, versioned variable sets. The feature schema depends on these; do
// not trim them without retraining.
var (
	hourlyVariables = []string{
		"temperature_2m",
		"dew_point_2m",
		"relative_humidity_2m",
		"precipitation",
		"snowfall",
		"snow_depth",
		"weather_code",
		"wind_speed_10m",
		"wind_gusts_10m",
	}
	dailyVariables = []string{
		"temperature_2m_min",
		"wind_gusts_10m_max",
		"snowfall_sum",
		"precipitation_sum",
	}
)

// OpenMeteoClient fetches hourly/daily series from the open-meteo forecast
// and archive endpoints, with retry and optional circuit breaking.
type OpenMeteoClient struct {
	archiveURL     string
	forecastURL    string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	clock          clockwork.Clock
	loc            *time.Location
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenMeteoClient returns a client. loc is the location's local timezone;
// provider timestamps are requested in and parsed into it so day slicing
// follows the local calendar.
func NewOpenMeteoClient(archiveURL, forecastURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration, loc *time.Location) (*OpenMeteoClient, error) {
	if archiveURL == "" || forecastURL == "" {
		return nil, fmt.Errorf("weather endpoints are required")
	}
	if loc == nil {
		return nil, fmt.Errorf("timezone is required")
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &OpenMeteoClient{
		archiveURL:     archiveURL,
		forecastURL:    forecastURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		clock:          clockwork.NewRealClock(),
		loc:            loc,
		client:         &http.Client{Timeout: timeout},
	}, nil
}

// SetClock swaps the time source used for date clamping. Tests only.
func (c *OpenMeteoClient) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

// SetCircuitBreaker attaches a circuit breaker around upstream calls.
func (c *OpenMeteoClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

type openMeteoResponse struct {
	Hourly struct {
		Time             []string   `json:"time"`
		Temperature      []*float64 `json:"temperature_2m"`
		DewPoint         []*float64 `json:"dew_point_2m"`
		RelativeHumidity []*float64 `json:"relative_humidity_2m"`
		Precipitation    []*float64 `json:"precipitation"`
		Snowfall         []*float64 `json:"snowfall"`
		SnowDepth        []*float64 `json:"snow_depth"`
		WeatherCode      []*float64 `json:"weather_code"`
		WindSpeed        []*float64 `json:"wind_speed_10m"`
		WindGusts        []*float64 `json:"wind_gusts_10m"`
	} `json:"hourly"`
	Daily struct {
		Time             []string   `json:"time"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		WindGustsMax     []*float64 `json:"wind_gusts_10m_max"`
		SnowfallSum      []*float64 `json:"snowfall_sum"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// FetchWindow retrieves the window covering every calendar day in
// [q.Start, q.End] inclusive. Historical queries are clamped to yesterday;
// future archive data does not exist.
func (c *OpenMeteoClient) FetchWindow(ctx context.Context, q WindowQuery) (*models.WeatherWindow, error) {
	start := dateOnly(q.Start)
	end := dateOnly(q.End)
	if !q.Forecast {
		yesterday := dateOnly(c.clock.Now().In(c.loc).AddDate(0, 0, -1))
		if end.After(yesterday) {
			end = yesterday
		}
	}
	if end.Before(start) {
		return nil, ErrEmptyRange
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		win, err := c.callAPI(ctx, q, start, end)
		if err == nil {
			return win, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) callAPI(ctx context.Context, q WindowQuery, start, end time.Time) (*models.WeatherWindow, error) {
	if c.breaker != nil {
		var win *models.WeatherWindow
		err := c.breaker.Call(ctx, func() error {
			var callErr error
			win, callErr = c.doCall(ctx, q, start, end)
			return callErr
		})
		return win, err
	}
	return c.doCall(ctx, q, start, end)
}

func (c *OpenMeteoClient) doCall(ctx context.Context, q WindowQuery, start, end time.Time) (*models.WeatherWindow, error) {
	began := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.buildRequest(reqCtx, q, start, end)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(time.Since(began).Seconds())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(time.Since(began).Seconds())

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return c.mapResponse(q, apiResp)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, q WindowQuery, start, end time.Time) (*http.Request, error) {
	rawURL := c.archiveURL
	if q.Forecast {
		rawURL = c.forecastURL
	}
	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", formatCoord(q.Latitude))
	params.Set("longitude", formatCoord(q.Longitude))
	params.Set("start_date", start.Format("2006-01-02"))
	params.Set("end_date", end.Format("2006-01-02"))
	params.Set("hourly", strings.Join(hourlyVariables, ","))
	params.Set("daily", strings.Join(dailyVariables, ","))
	params.Set("timezone", c.loc.String())
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenMeteoClient) mapResponse(q WindowQuery, apiResp openMeteoResponse) (*models.WeatherWindow, error) {
	win := &models.WeatherWindow{Latitude: q.Latitude, Longitude: q.Longitude}

	for _, ts := range apiResp.Hourly.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, c.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: hourly timestamp %q", ErrMalformedResponse, ts)
		}
		win.Hourly.Time = append(win.Hourly.Time, t)
	}
	win.Hourly.Temperature = apiResp.Hourly.Temperature
	win.Hourly.DewPoint = apiResp.Hourly.DewPoint
	win.Hourly.RelativeHumidity = apiResp.Hourly.RelativeHumidity
	win.Hourly.Precipitation = apiResp.Hourly.Precipitation
	win.Hourly.Snowfall = apiResp.Hourly.Snowfall
	win.Hourly.SnowDepth = apiResp.Hourly.SnowDepth
	win.Hourly.WeatherCode = apiResp.Hourly.WeatherCode
	win.Hourly.WindSpeed = apiResp.Hourly.WindSpeed
	win.Hourly.WindGusts = apiResp.Hourly.WindGusts

	for _, ts := range apiResp.Daily.Time {
		t, err := time.ParseInLocation("2006-01-02", ts, c.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: daily timestamp %q", ErrMalformedResponse, ts)
		}
		win.Daily.Time = append(win.Daily.Time, t)
	}
	win.Daily.TemperatureMin = apiResp.Daily.TemperatureMin
	win.Daily.WindGustsMax = apiResp.Daily.WindGustsMax
	win.Daily.SnowfallSum = apiResp.Daily.SnowfallSum
	win.Daily.PrecipitationSum = apiResp.Daily.PrecipitationSum

	return win, nil
}

func (c *OpenMeteoClient) backoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	case code < 200 || code >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "context deadline exceeded")
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	}
	return "error"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
