package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xmmwu/weather-proxy/internal/translator"
)

// Cache-duration config rows hold minutes as decimal strings and override the
// built-in defaults when present and positive.
const (
	realtimeTTLKey = "realtime_cache_duration"
	forecastTTLKey = "forecast_cache_duration"

	defaultRealtimeTTL = 3 * time.Minute
	defaultForecastTTL = 720 * time.Minute
	defaultTTL         = 10 * time.Minute
)

func (s *WeatherService) resolveTTL(ctx context.Context, dataType translator.DataType) time.Duration {
	switch {
	case translator.IsRealtime(dataType):
		return s.configuredTTL(ctx, realtimeTTLKey, defaultRealtimeTTL)
	case translator.IsForecast(dataType):
		return s.configuredTTL(ctx, forecastTTLKey, defaultForecastTTL)
	default:
		return defaultTTL
	}
}

func (s *WeatherService) configuredTTL(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if s.config == nil {
		return fallback
	}
	entry, ok, err := s.config.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache duration lookup failed", zap.String("key", key), zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	minutes, err := strconv.Atoi(entry.Value)
	if err != nil || minutes <= 0 {
		s.logger.Warn("ignoring invalid cache duration",
			zap.String("key", key), zap.String("value", entry.Value))
		return fallback
	}
	return time.Duration(minutes) * time.Minute
}
