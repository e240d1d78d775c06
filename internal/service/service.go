package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xmmwu/weather-proxy/internal/cache"
	"github.com/xmmwu/weather-proxy/internal/models"
	"github.com/xmmwu/weather-proxy/internal/observability"
	"github.com/xmmwu/weather-proxy/internal/qweather"
	"github.com/xmmwu/weather-proxy/internal/store"
	"github.com/xmmwu/weather-proxy/internal/translator"
)

// WeatherService serves rendered legacy XML through a two-tier cache: the
// persistent store first, then the short-lived in-process tier, then a live
// upstream fetch. A short-lived hit is written through to the persistent tier
// so the next reader finds it there.
type WeatherService struct {
	source     qweather.Source
	translator *translator.Translator
	persistent store.WeatherCacheStore
	shortLived cache.Cache
	config     store.ConfigStore
	failOpen   bool
	logger     *zap.Logger
}

// NewWeatherService wires the read-path dependencies. failOpen selects the
// behavior when current conditions stay unavailable after retries: serve a
// zero-filled placeholder document (true) or fail the request (false).
func NewWeatherService(source qweather.Source, tr *translator.Translator, persistent store.WeatherCacheStore, shortLived cache.Cache, config store.ConfigStore, failOpen bool, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		source:     source,
		translator: tr,
		persistent: persistent,
		shortLived: shortLived,
		config:     config,
		failOpen:   failOpen,
		logger:     logger,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func (s *WeatherService) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}

// GetWeatherXML resolves the location identifier and returns the rendered XML
// document for the (dataType, appType) pair. identifier may be a city name or
// a provider cityId.
func (s *WeatherService) GetWeatherXML(ctx context.Context, identifier string, dataType translator.DataType, appType translator.AppType) (string, error) {
	start := time.Now()
	logger := s.loggerFromContext(ctx)

	city, err := s.source.ResolveCity(ctx, identifier)
	if err != nil {
		return "", err
	}
	observability.RecordWeatherQuery(city.Name)

	if entry, ok := s.persistentGet(ctx, city.ID, dataType, appType); ok {
		observability.CacheHitsTotal.WithLabelValues("persistent").Inc()
		logger.Debug("persistent cache hit",
			zap.String("cityId", city.ID),
			zap.String("dataType", string(dataType)))
		return entry.XMLData, nil
	}

	memKey := cache.Key(identifier, string(dataType))
	if xml, ok := s.shortLivedGet(ctx, memKey); ok {
		observability.CacheHitsTotal.WithLabelValues("memory").Inc()
		// Write through so the next reader hits the persistent tier.
		ttl := s.resolveTTL(ctx, dataType)
		if err := s.persistent.Upsert(ctx, city.ID, string(dataType), string(appType), xml, ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("persistent_set").Inc()
			logger.Warn("write-through failed", zap.String("cityId", city.ID), zap.Error(err))
		}
		logger.Debug("memory cache hit", zap.String("key", memKey))
		return xml, nil
	}

	snap, err := s.source.FetchWeather(ctx, city)
	if err != nil {
		if s.failOpen && errors.Is(err, qweather.ErrConditionsUnavailable) {
			// Any document renders from an all-zero snapshot; the fixed
			// parsers prefer placeholder values over an error body.
			logger.Warn("current conditions unavailable, serving zero-filled document",
				zap.String("cityId", city.ID),
				zap.String("dataType", string(dataType)),
				zap.Error(err))
			snap = models.WeatherSnapshot{City: city}
		} else {
			return "", fmt.Errorf("fetch weather for %s: %w", identifier, err)
		}
	}

	xml := s.translator.Render(snap, dataType, appType)
	ttl := s.resolveTTL(ctx, dataType)
	s.storeBothTiers(ctx, city.ID, memKey, dataType, appType, xml, ttl, logger)

	logger.Debug("weather served",
		zap.String("cityId", city.ID),
		zap.String("dataType", string(dataType)),
		zap.String("appType", string(appType)),
		zap.Duration("duration", time.Since(start)))
	return xml, nil
}

func (s *WeatherService) persistentGet(ctx context.Context, cityID string, dataType translator.DataType, appType translator.AppType) (store.CacheEntry, bool) {
	entry, ok, err := s.persistent.Get(ctx, cityID, string(dataType), string(appType))
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("persistent_get").Inc()
		return store.CacheEntry{}, false
	}
	return entry, ok
}

func (s *WeatherService) shortLivedGet(ctx context.Context, key string) (string, bool) {
	xml, ok, err := s.shortLived.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("memory_get").Inc()
		return "", false
	}
	return xml, ok
}

func (s *WeatherService) storeBothTiers(ctx context.Context, cityID, memKey string, dataType translator.DataType, appType translator.AppType, xml string, ttl time.Duration, logger *zap.Logger) {
	if err := s.persistent.Upsert(ctx, cityID, string(dataType), string(appType), xml, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("persistent_set").Inc()
		logger.Warn("persistent cache set failed", zap.String("cityId", cityID), zap.Error(err))
	}
	if err := s.shortLived.Set(ctx, memKey, xml, ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("memory_set").Inc()
		logger.Warn("memory cache set failed", zap.String("key", memKey), zap.Error(err))
	}
}

// forecastDataTypes are the rows the scheduled refresh keeps warm, paired with
// the client family that writes them.
var forecastDataTypes = []struct {
	dataType translator.DataType
	appType  translator.AppType
}{
	{translator.DataTypeTVForecast, translator.AppTypeTV},
	{translator.DataTypeWidgetForecast, translator.AppTypeWidget},
}

// ForecastDataTypeNames returns the dataType strings the refresh job queries for.
func ForecastDataTypeNames() []string {
	names := make([]string, len(forecastDataTypes))
	for i, fd := range forecastDataTypes {
		names[i] = string(fd.dataType)
	}
	return names
}

// RefreshForecasts re-fetches and re-renders the forecast documents of every
// city that currently has a live forecast row. Per-city failures are logged
// and skipped; the run only errors when the city list cannot be read.
func (s *WeatherService) RefreshForecasts(ctx context.Context) (refreshed, failed int, err error) {
	cityIDs, err := s.persistent.CitiesWithLiveForecast(ctx, ForecastDataTypeNames())
	if err != nil {
		return 0, 0, fmt.Errorf("list cities with live forecast: %w", err)
	}

	for _, cityID := range cityIDs {
		if err := s.refreshCity(ctx, cityID); err != nil {
			failed++
			observability.RefreshCitiesTotal.WithLabelValues("failed").Inc()
			s.logger.Warn("forecast refresh failed", zap.String("cityId", cityID), zap.Error(err))
			continue
		}
		refreshed++
		observability.RefreshCitiesTotal.WithLabelValues("refreshed").Inc()
	}
	return refreshed, failed, nil
}

func (s *WeatherService) refreshCity(ctx context.Context, cityID string) error {
	city, err := s.source.ResolveCity(ctx, cityID)
	if err != nil {
		return fmt.Errorf("resolve city: %w", err)
	}
	snap, err := s.source.FetchWeather(ctx, city)
	if err != nil {
		return fmt.Errorf("fetch weather: %w", err)
	}

	ttl := s.resolveTTL(ctx, translator.DataTypeTVForecast)
	for _, fd := range forecastDataTypes {
		// Only rows a client has actually requested are kept warm.
		if _, ok := s.persistentGet(ctx, cityID, fd.dataType, fd.appType); !ok {
			continue
		}
		xml := s.translator.Render(snap, fd.dataType, fd.appType)
		if err := s.persistent.Upsert(ctx, cityID, string(fd.dataType), string(fd.appType), xml, ttl); err != nil {
			return fmt.Errorf("store %s: %w", fd.dataType, err)
		}
	}
	return nil
}
