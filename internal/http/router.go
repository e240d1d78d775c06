package http

import (
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xmmwu/weather-proxy/internal/observability"
)

// NewRouter builds the full route table. The rate limiter and request timeout
// guard only the weather route; admin and health endpoints stay reachable
// when the proxy sheds load.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	weather := router.PathPrefix("/api/weather").Subrouter()
	weather.Use(RateLimitMiddleware(limiter))
	weather.Use(TimeoutMiddleware(requestTimeout))
	weather.HandleFunc("", h.GetWeather).Methods("GET")

	cfg := router.PathPrefix("/api/config").Subrouter()
	cfg.HandleFunc("/cache", h.ListCacheConfigs).Methods("GET")
	cfg.HandleFunc("/cache", h.CreateCacheConfig).Methods("POST")
	cfg.HandleFunc("/cache/{key}", h.GetCacheConfig).Methods("GET")
	cfg.HandleFunc("/cache/{key}", h.PutCacheConfig).Methods("PUT")
	cfg.HandleFunc("/cache/{key}", h.DeleteCacheConfig).Methods("DELETE")
	cfg.HandleFunc("/weather-cache", h.PurgeWeatherCache).Methods("DELETE")

	return router
}
