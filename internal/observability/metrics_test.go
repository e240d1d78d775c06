package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across qweather, http, service, and cache packages.
func TestMetrics_Usable(t *testing.T) {
	// Verify metrics can be used without panic; label dimensions match usage in qweather, http, service, cache
	// Route uses path template to avoid cardinality (e.g. /api/weather not query strings)
	HTTPRequestsTotal.WithLabelValues("GET", "/api/weather", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/api/weather").Observe(0.01)
	UpstreamCallsTotal.WithLabelValues("now", "success").Inc()
	UpstreamCallsTotal.WithLabelValues("forecast", "error").Inc()
	UpstreamDuration.WithLabelValues("now", "success").Observe(0.1)
	CacheHitsTotal.WithLabelValues("persistent").Inc()
	CacheHitsTotal.WithLabelValues("memory").Inc()
	CacheErrorsTotal.WithLabelValues("get").Inc()
	WeatherQueriesTotal.Inc()
	WeatherQueriesByCityTotal.WithLabelValues("深圳").Inc()
	WeatherQueriesByCityTotal.WithLabelValues("other").Inc()
	RefreshRunsTotal.WithLabelValues("ok").Inc()
	RefreshCitiesTotal.WithLabelValues("refreshed").Inc()
	PurgedEntriesTotal.WithLabelValues("admin").Inc()
}

// TestSetTrackedCities_and_RecordWeatherQuery verifies that SetTrackedCities
// configures the city allow-list and RecordWeatherQuery correctly labels tracked vs "other" cities.
func TestSetTrackedCities_and_RecordWeatherQuery(t *testing.T) {
	SetTrackedCities([]string{"深圳", "beijing"})
	RecordWeatherQuery("Beijing")
	RecordWeatherQuery("unknown-city")
	SetTrackedCities(nil) // reset for other tests
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
