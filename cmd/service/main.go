package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nvaidyanathan/panchangam-today/internal/cache"
	"github.com/nvaidyanathan/panchangam-today/internal/circuitbreaker"
	"github.com/nvaidyanathan/panchangam-today/internal/config"
	"github.com/nvaidyanathan/panchangam-today/internal/geoloc"
	httphandler "github.com/nvaidyanathan/panchangam-today/internal/http"
	"github.com/nvaidyanathan/panchangam-today/internal/ics"
	"github.com/nvaidyanathan/panchangam-today/internal/lifecycle"
	"github.com/nvaidyanathan/panchangam-today/internal/models"
	"github.com/nvaidyanathan/panchangam-today/internal/observability"
	"github.com/nvaidyanathan/panchangam-today/internal/panchangam"
	"github.com/nvaidyanathan/panchangam-today/internal/status"
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

	snapshotClient, err := panchangam.NewHTTPClientWithRetry(
		cfg.PanchangamAPIURL,
		cfg.PanchangamAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("panchangam client", zap.Error(err))
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Info("circuit breaker transition",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		snapshotClient.SetCircuitBreaker(cb)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var snapshotCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		snapshotCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		snapshotCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}
	snapshotService := panchangam.NewService(snapshotClient, snapshotCache, cfg.CacheTTL, cfg.CacheBackend)
	holder := panchangam.NewHolder(snapshotService)

	store, err := geoloc.NewSQLiteStore(cfg.PreferencePath)
	if err != nil {
		logger.Fatal("preference store", zap.Error(err))
	}
	revgeo, err := geoloc.NewNominatimClient(cfg.ReverseGeocodeURL, cfg.ReverseGeocodeTimeout)
	if err != nil {
		logger.Fatal("reverse geocoder", zap.Error(err))
	}
	ipLocator, err := geoloc.NewIPAPIClient(cfg.IPGeolocateURL, cfg.IPGeolocateTimeout)
	if err != nil {
		logger.Fatal("ip locator", zap.Error(err))
	}
	defaultPref := models.LocationPreference{
		Coordinates: models.Coordinates{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude},
		Timezone:    cfg.DefaultTimezone,
		Label:       cfg.DefaultLabel,
		Source:      models.SourceDefault,
	}
	resolver, err := geoloc.NewResolver(store, geoloc.NoDevice{}, revgeo, ipLocator, defaultPref, cfg.DeviceFixMaxAge, logger)
	if err != nil {
		logger.Fatal("location resolver", zap.Error(err))
	}

	engine := status.NewEngine(cfg.StatusRefreshInterval, logger)
	engineCtx, engineCancel := context.WithCancel(context.Background())
	engine.Start(engineCtx)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(resolver, snapshotService, holder, engine, ics.NewExporter(), healthConfig, logger, limiter)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.Use(httphandler.InFlightMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	apiRouter := router.PathPrefix("/").Subrouter()
	apiRouter.Use(httphandler.RateLimitMiddleware(limiter))
	apiRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	apiRouter.HandleFunc("/location", handler.GetLocation).Methods("GET")
	apiRouter.HandleFunc("/location/resolve", handler.PostResolveLocation).Methods("POST")
	apiRouter.HandleFunc("/location", handler.PutLocation).Methods("PUT")
	apiRouter.HandleFunc("/location", handler.DeleteLocation).Methods("DELETE")
	apiRouter.HandleFunc("/today", handler.GetToday).Methods("GET")
	apiRouter.HandleFunc("/calendar.ics", handler.GetCalendar).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
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
	lifecycle.SetDraining(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	engine.Stop()
	engineCancel()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
