package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/xmmwu/weather-proxy/internal/observability"
	"github.com/xmmwu/weather-proxy/internal/service"
	"github.com/xmmwu/weather-proxy/internal/store"
)

const jobTimeout = 5 * time.Minute

// Scheduler runs the background maintenance jobs: an hourly forecast refresh
// for every city with a live forecast row, and a nightly sweep of expired
// cache rows. Jobs run in the configured timezone.
type Scheduler struct {
	scheduler *gocron.Scheduler
	weather   *service.WeatherService
	cacheRows store.WeatherCacheStore
	logger    *zap.Logger
}

// New creates a Scheduler. loc determines when "midnight" falls for the sweep.
func New(loc *time.Location, weather *service.WeatherService, cacheRows store.WeatherCacheStore, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		weather:   weather,
		cacheRows: cacheRows,
		logger:    logger,
	}
}

// Start schedules both jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Hour().Do(s.refreshForecasts); err != nil {
		return err
	}
	if _, err := s.scheduler.Cron("0 0 * * *").Do(s.sweepExpired); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started",
		zap.String("timezone", s.scheduler.Location().String()))
	return nil
}

// Stop stops the scheduler and cancels any future jobs. Running jobs finish.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) refreshForecasts() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	refreshed, failed, err := s.weather.RefreshForecasts(ctx)
	if err != nil {
		observability.RefreshRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("forecast refresh run failed", zap.Error(err))
		return
	}
	observability.RefreshRunsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("forecast refresh completed",
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) sweepExpired() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	deleted, err := s.cacheRows.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("expired cache sweep failed", zap.Error(err))
		return
	}
	observability.PurgedEntriesTotal.WithLabelValues("sweep").Add(float64(deleted))
	s.logger.Info("expired cache sweep completed", zap.Int64("deleted", deleted))
}
