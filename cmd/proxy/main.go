package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xmmwu/weather-proxy/internal/cache"
	"github.com/xmmwu/weather-proxy/internal/circuitbreaker"
	"github.com/xmmwu/weather-proxy/internal/config"
	httphandler "github.com/xmmwu/weather-proxy/internal/http"
	"github.com/xmmwu/weather-proxy/internal/lifecycle"
	"github.com/xmmwu/weather-proxy/internal/observability"
	"github.com/xmmwu/weather-proxy/internal/qweather"
	"github.com/xmmwu/weather-proxy/internal/scheduler"
	"github.com/xmmwu/weather-proxy/internal/service"
	"github.com/xmmwu/weather-proxy/internal/store"
	"github.com/xmmwu/weather-proxy/internal/translator"
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

	var (
		cityStore   store.CityStore
		cacheRows   store.WeatherCacheStore
		configStore store.ConfigStore
		pool        *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres pool", zap.Error(err))
		}
		pg := store.NewPostgres(pool)
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := pg.Migrate(migrateCtx); err != nil {
			migrateCancel()
			logger.Fatal("migrate", zap.Error(err))
		}
		migrateCancel()
		cityStore = pg.Cities
		cacheRows = pg.WeatherCache
		configStore = pg.Config
		logger.Info("store backend: postgres")
	} else {
		cityStore = store.NewMemoryCityStore()
		cacheRows = store.NewMemoryWeatherCache()
		configStore = store.NewMemoryConfigStore()
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}

	signer, err := qweather.NewTokenSignerFromFile(cfg.QWeatherJWTKid, cfg.QWeatherJWTSub, cfg.QWeatherKeyPath)
	if err != nil {
		logger.Fatal("jwt signer", zap.Error(err))
	}
	retry := qweather.RetryPolicy{
		MaxAttempts: cfg.RetryAttempts,
		Delay:       cfg.RetryDelay,
		Validate:    qweather.CompleteConditions,
	}
	source, err := qweather.NewClient(cfg.QWeatherHost, signer, cityStore, cfg.UpstreamTimeout, retry)
	if err != nil {
		logger.Fatal("qweather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		source.SetBreaker(circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Cooldown:         cfg.CircuitBreakerCooldown,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("upstream circuit breaker state change",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}))
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("cooldown", cfg.CircuitBreakerCooldown))
	}

	var shortLived cache.Cache
	var memoryCache *cache.MemoryCache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		shortLived = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		memoryCache = cache.NewMemoryCache(cfg.CacheSweepInterval)
		shortLived = memoryCache
		logger.Info("cache backend: in_memory")
	}

	loc := cfg.Location()
	tr := translator.New(loc)
	weatherService := service.NewWeatherService(source, tr, cacheRows, shortLived, configStore, cfg.RealtimeFailOpen, logger)

	sched := scheduler.New(loc, weatherService, cacheRows, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	handler := httphandler.NewHandler(weatherService, cacheRows, configStore, logger)
	if pool != nil {
		handler.DatabasePing = pool.Ping
	}
	if memcacheCloser != nil {
		handler.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	if len(cfg.TrackedCities) > 0 {
		observability.SetTrackedCities(cfg.TrackedCities)
	}

	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

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
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	sched.Stop()
	if memoryCache != nil {
		memoryCache.Stop()
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if pool != nil {
		pool.Close()
	}
	logger.Info("shutdown complete")
}
