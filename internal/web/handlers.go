// Package web carries the HTTP surface: handlers, middleware and routing.
package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/snowday-predictor/internal/counter"
	"github.com/kjstillabower/snowday-predictor/internal/service"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	predictions *service.PredictionService
	counter     *counter.Counter
	logger      *zap.Logger
	// cachePing, when set, reports cache reachability on /health.
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(predictions *service.PredictionService, cnt *counter.Counter, logger *zap.Logger) *Handler {
	return &Handler{predictions: predictions, counter: cnt, logger: logger}
}

// SetCachePing registers a cache reachability probe for the health check.
func (h *Handler) SetCachePing(ping func() error) {
	h.cachePing = ping
}

// GetPredict handles GET /predict?lat&lon.
func (h *Handler) GetPredict(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	results, err := h.predictions.Predict(r.Context(), lat, lon)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GetExplain handles GET /explain?lat&lon. Only the nearest school day is
// explained.
func (h *Handler) GetExplain(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := parseCoordinates(w, r)
	if !ok {
		return
	}

	reasons, err := h.predictions.Explain(r.Context(), lat, lon)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	results := make([]map[string]string, 0, len(reasons))
	for _, reason := range reasons {
		results = append(results, map[string]string{"reason": reason.Humanized})
	}
	writeJSON(w, http.StatusOK, results)
}

// GetCount handles GET /count.
func (h *Handler) GetCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.counter.Next())
}

// GetHealth handles GET /health. An unreachable cache degrades the reported
// status but stays a 200: cache loss costs latency, not correctness.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			status = "degraded"
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "snowday-predictor",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseCoordinates extracts and validates the lat/lon query parameters,
// writing the error response itself on failure.
func parseCoordinates(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		writeError(w, r, http.StatusBadRequest, "MISSING_COORDINATES", "lat and lon query parameters are required")
		return 0, 0, false
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		writeError(w, r, http.StatusBadRequest, "INVALID_LATITUDE", "lat must be a number in [-90, 90]")
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		writeError(w, r, http.StatusBadRequest, "INVALID_LONGITUDE", "lon must be a number in [-180, 180]")
		return 0, 0, false
	}
	return lat, lon, true
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message, and requestId (correlation ID) if available in context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value(correlationIDKey); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps pipeline failures onto the error envelope. Upstream
// trouble is a 503; an empty forecast window is a 404.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if logger, ok := r.Context().Value(loggerKey).(*zap.Logger); ok && logger != nil {
		logger.Debug("pipeline error", zap.Error(err))
	}
	if errors.Is(err, service.ErrNoForecastRows) {
		writeError(w, r, http.StatusNotFound, "NO_FORECAST_DATA", "No forecast data available for the requested week")
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
}
