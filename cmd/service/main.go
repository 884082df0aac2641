package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/snowday-predictor/internal/alerts"
	"github.com/kjstillabower/snowday-predictor/internal/circuitbreaker"
	"github.com/kjstillabower/snowday-predictor/internal/config"
	"github.com/kjstillabower/snowday-predictor/internal/counter"
	"github.com/kjstillabower/snowday-predictor/internal/explain"
	"github.com/kjstillabower/snowday-predictor/internal/features"
	"github.com/kjstillabower/snowday-predictor/internal/meteo"
	"github.com/kjstillabower/snowday-predictor/internal/model"
	"github.com/kjstillabower/snowday-predictor/internal/observability"
	"github.com/kjstillabower/snowday-predictor/internal/service"
	"github.com/kjstillabower/snowday-predictor/internal/severity"
	"github.com/kjstillabower/snowday-predictor/internal/web"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("timezone", zap.Error(err))
	}

	// Configuration errors are fatal before the first request: a severity
	// table missing a label the alert dictionary can emit, a missing model
	// artifact, or a model trained on a different feature schema.
	severityTable := severity.DefaultTable()
	if err := severityTable.Validate(alerts.CanonicalLabels()); err != nil {
		logger.Fatal("severity table", zap.Error(err))
	}
	bucketTable := explain.DefaultTable()
	if err := bucketTable.Validate(); err != nil {
		logger.Fatal("humanization table", zap.Error(err))
	}
	forest, err := model.Load(cfg.ModelPath, features.Names())
	if err != nil {
		logger.Fatal("model artifact", zap.Error(err))
	}
	logger.Info("model loaded", zap.String("path", cfg.ModelPath), zap.Int("features", features.Count()))

	weatherClient, err := meteo.NewOpenMeteoClient(
		cfg.WeatherArchiveURL,
		cfg.WeatherForecastURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
		loc,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				observability.SetCircuitBreakerState("weather_api", int(to))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerState("weather_api", 0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var fetcherOpts []alerts.Option
	fetcherOpts = append(fetcherOpts, alerts.WithMaxConcurrent(cfg.AlertMaxConcurrent))
	var memcacheCloser *alerts.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := alerts.NewMemcachedCache(strings.Split(cfg.MemcachedAddrs, ","), cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		fetcherOpts = append(fetcherOpts, alerts.WithCache(mc, cfg.CacheTTL))
		logger.Info("alert cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "in_memory":
		fetcherOpts = append(fetcherOpts, alerts.WithCache(alerts.NewMemoryCache(), cfg.CacheTTL))
		logger.Info("alert cache backend: in_memory")
	default:
		logger.Info("alert cache disabled")
	}
	alertFetcher := alerts.NewFetcher(
		cfg.AlertFeedBaseURL,
		cfg.AlertLanguage,
		cfg.AlertBufferDegrees,
		cfg.AlertFeedTimeout,
		logger,
		fetcherOpts...,
	)

	explainer := explain.NewEngine(forest, bucketTable)
	predictions := service.New(weatherClient, alertFetcher, forest, explainer, severityTable, loc, cfg.SchoolStartHour, logger)

	counterOpts := []counter.Option{}
	if cfg.CounterCSVPath != "" {
		counterOpts = append(counterOpts, counter.WithStore(counter.NewCSVStore(cfg.CounterCSVPath), logger))
	}
	visitCounter := counter.New(cfg.SchoolStartHour, loc, logger, counterOpts...)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := web.NewHandler(predictions, visitCounter, logger)
	if memcacheCloser != nil {
		handler.SetCachePing(memcacheCloser.Ping)
	}

	router := mux.NewRouter()
	router.Use(web.CorrelationIDMiddleware(logger))
	router.Use(web.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/count", handler.GetCount).Methods("GET")

	pipelineRouter := router.NewRoute().Subrouter()
	pipelineRouter.Use(web.RateLimitMiddleware(limiter))
	pipelineRouter.Use(web.TimeoutMiddleware(cfg.RequestTimeout))
	pipelineRouter.HandleFunc("/predict", handler.GetPredict).Methods("GET")
	pipelineRouter.HandleFunc("/explain", handler.GetExplain).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
