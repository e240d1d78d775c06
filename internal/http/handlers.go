package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xmmwu/weather-proxy/internal/lifecycle"
	"github.com/xmmwu/weather-proxy/internal/qweather"
	"github.com/xmmwu/weather-proxy/internal/service"
	"github.com/xmmwu/weather-proxy/internal/store"
	"github.com/xmmwu/weather-proxy/internal/translator"
	"github.com/xmmwu/weather-proxy/internal/validation"
)

// Legacy clients parse these error documents verbatim; the wording must not change.
const (
	errMissingDataType = "<error>Missing dataType parameter</error>"
	errMissingLocation = "<error>Missing location parameter (sname, cityId, or location)</error>"
	errCityNotFound    = "<error>City not found</error>"
	errFetchFailed     = "<error>Failed to get weather data</error>"
)

const identifierMaxLength = 100

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather   *service.WeatherService
	cacheRows store.WeatherCacheStore
	config    store.ConfigStore
	logger    *zap.Logger

	// DatabasePing, when set, is called by the health handler to check the
	// persistent store. CachePing likewise for a memcached backend.
	DatabasePing func(ctx context.Context) error
	CachePing    func() error
}

// NewHandler returns a new Handler.
func NewHandler(weather *service.WeatherService, cacheRows store.WeatherCacheStore, config store.ConfigStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:   weather,
		cacheRows: cacheRows,
		config:    config,
		logger:    logger,
	}
}

// GetWeather handles GET /api/weather. The location comes from sname, cityId
// or location (checked in that order); dataType selects the legacy schema and
// code identifies the client family. Every response on this route is XML.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	dataType := strings.TrimSpace(q.Get("dataType"))
	if dataType == "" {
		writeXML(w, http.StatusBadRequest, errMissingDataType)
		return
	}

	raw := firstNonEmpty(q.Get("sname"), q.Get("cityId"), q.Get("location"))
	identifier, err := validation.ValidateIdentifier(raw, identifierMaxLength)
	if err != nil {
		if errors.Is(err, validation.ErrIdentifierEmpty) {
			writeXML(w, http.StatusBadRequest, errMissingLocation)
			return
		}
		// A malformed identifier can never resolve to a city.
		writeXML(w, http.StatusNotFound, errCityNotFound)
		return
	}

	appType := translator.AppTypeFromCode(strings.TrimSpace(q.Get("code")))

	xml, err := h.weather.GetWeatherXML(r.Context(), identifier, translator.DataType(dataType), appType)
	if err != nil {
		if errors.Is(err, qweather.ErrCityNotFound) {
			writeXML(w, http.StatusNotFound, errCityNotFound)
			return
		}
		if logger := loggerFromRequest(r, h.logger); logger != nil {
			logger.Error("weather request failed",
				zap.String("identifier", identifier),
				zap.String("dataType", dataType),
				zap.Error(err))
		}
		writeXML(w, http.StatusInternalServerError, errFetchFailed)
		return
	}

	writeXML(w, http.StatusOK, xml)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}

	if h.DatabasePing != nil {
		if err := h.DatabasePing(r.Context()); err != nil {
			checks["database"] = "unhealthy"
			if status == "healthy" {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		} else {
			checks["database"] = "healthy"
		}
	}
	if h.CachePing != nil {
		if err := h.CachePing(); err != nil {
			checks["cache"] = "unhealthy"
			if status == "healthy" {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "weather-proxy",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// writeXML writes an XML response body. The legacy clients expect
// application/xml on the weather route for success and error alike.
func writeXML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		return logger
	}
	return fallback
}
