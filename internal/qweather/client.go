package qweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xmmwu/weather-proxy/internal/circuitbreaker"
	"github.com/xmmwu/weather-proxy/internal/models"
	"github.com/xmmwu/weather-proxy/internal/observability"
	"github.com/xmmwu/weather-proxy/internal/store"
	"github.com/xmmwu/weather-proxy/internal/validation"
)

// Source resolves location identifiers and fetches normalized weather
// snapshots from the upstream provider.
type Source interface {
	ResolveCity(ctx context.Context, identifier string) (models.City, error)
	FetchWeather(ctx context.Context, city models.City) (models.WeatherSnapshot, error)
}

var (
	ErrCityNotFound          = errors.New("city not found")
	ErrConditionsUnavailable = errors.New("current conditions unavailable")
	ErrUpstreamFailure       = errors.New("upstream failure")
	ErrRateLimited           = errors.New("rate limited")
	ErrUnauthorized          = errors.New("unauthorized")
)

// Client talks to the QWeather HTTP API. City lookups are served from the
// city store first; geo API results are persisted back so a city is resolved
// over the network at most once.
type Client struct {
	baseURL string
	signer  *TokenSigner
	cities  store.CityStore
	retry   RetryPolicy
	timeout time.Duration
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewClient builds a Client. host may be a bare hostname (https assumed) or a
// full base URL.
func NewClient(host string, signer *TokenSigner, cities store.CityStore, timeout time.Duration, retry RetryPolicy) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("api host is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("token signer is required")
	}
	baseURL := host
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Client{
		baseURL: baseURL,
		signer:  signer,
		cities:  cities,
		retry:   retry,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetBreaker installs a circuit breaker around every upstream call. A nil
// breaker disables it.
func (c *Client) SetBreaker(b *circuitbreaker.Breaker) {
	c.breaker = b
}

type geoResponse struct {
	Code     string        `json:"code"`
	Location []geoLocation `json:"location"`
}

type geoLocation struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

type nowResponse struct {
	Code       string               `json:"code"`
	UpdateTime string               `json:"updateTime"`
	Now        models.NowConditions `json:"now"`
}

type forecastResponse struct {
	Code       string               `json:"code"`
	UpdateTime string               `json:"updateTime"`
	Daily      []models.ForecastDay `json:"daily"`
}

type hourlyResponse struct {
	Code       string              `json:"code"`
	UpdateTime string              `json:"updateTime"`
	Hourly     []models.HourRecord `json:"hourly"`
}

type indicesResponse struct {
	Code       string              `json:"code"`
	UpdateTime string              `json:"updateTime"`
	Daily      []models.DailyIndex `json:"daily"`
}

// ResolveCity maps a city name or cityId to city metadata. The store is
// consulted first; a geo API hit is written back before returning.
func (c *Client) ResolveCity(ctx context.Context, identifier string) (models.City, error) {
	if identifier == "" {
		return models.City{}, fmt.Errorf("%w: empty identifier", ErrCityNotFound)
	}

	if c.cities != nil {
		cached, ok, err := c.lookupStore(ctx, identifier)
		if err == nil && ok {
			return models.City{ID: cached.CityID, Name: cached.Name}, nil
		}
		// A store error degrades to a network lookup, it does not fail the request.
	}

	var geo geoResponse
	params := url.Values{}
	params.Set("location", identifier)
	params.Set("lang", "zh")
	if err := c.getJSON(ctx, "geo", c.baseURL+"/geo/v2/city/lookup", params, &geo); err != nil {
		return models.City{}, err
	}
	if len(geo.Location) == 0 {
		return models.City{}, fmt.Errorf("%w: %s", ErrCityNotFound, identifier)
	}

	loc := geo.Location[0]
	if c.cities != nil {
		if _, err := c.cities.Upsert(ctx, loc.Name, loc.ID); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("city_upsert").Inc()
		}
	}

	return models.City{
		ID:        loc.ID,
		Name:      loc.Name,
		Latitude:  loc.Lat,
		Longitude: loc.Lon,
	}, nil
}

func (c *Client) lookupStore(ctx context.Context, identifier string) (store.City, bool, error) {
	if validation.IsCityID(identifier) {
		return c.cities.GetByCityID(ctx, identifier)
	}
	return c.cities.GetByName(ctx, identifier)
}

// FetchWeather pulls current conditions, 7-day forecast, 24-hour forecast and
// daily indices for the city. Current conditions go through the retry policy;
// the remaining calls are attempted once and their failures propagate.
func (c *Client) FetchWeather(ctx context.Context, city models.City) (models.WeatherSnapshot, error) {
	snap := models.WeatherSnapshot{City: city}

	var nowUpdate string
	now, err := c.retry.Do(ctx, func(ctx context.Context) (models.NowConditions, error) {
		var resp nowResponse
		if err := c.getJSON(ctx, "now", c.baseURL+"/v7/weather/now", locationParams(city.ID), &resp); err != nil {
			return models.NowConditions{}, err
		}
		nowUpdate = resp.UpdateTime
		return resp.Now, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.WeatherSnapshot{}, err
		}
		return models.WeatherSnapshot{}, fmt.Errorf("%w: %s", ErrConditionsUnavailable, err)
	}
	snap.Now = now
	snap.NowUpdateTime = nowUpdate

	var fc forecastResponse
	if err := c.getJSON(ctx, "forecast", c.baseURL+"/v7/weather/7d", locationParams(city.ID), &fc); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch forecast: %w", err)
	}
	snap.Forecast = fc.Daily
	snap.ForecastUpdateTime = fc.UpdateTime
	if len(fc.Daily) > 0 {
		snap.City.Sunrise = fc.Daily[0].Sunrise
		snap.City.Sunset = fc.Daily[0].Sunset
	}

	var hr hourlyResponse
	if err := c.getJSON(ctx, "hourly", c.baseURL+"/v7/weather/24h", locationParams(city.ID), &hr); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch hourly: %w", err)
	}
	snap.Hourly = hr.Hourly
	snap.HourlyUpdateTime = hr.UpdateTime

	idxParams := locationParams(city.ID)
	idxParams.Set("type", "0")
	var idx indicesResponse
	if err := c.getJSON(ctx, "indices", c.baseURL+"/v7/indices/1d", idxParams, &idx); err != nil {
		return models.WeatherSnapshot{}, fmt.Errorf("fetch indices: %w", err)
	}
	snap.Indices = idx.Daily
	snap.IndicesUpdateTime = idx.UpdateTime

	return snap, nil
}

func locationParams(cityID string) url.Values {
	params := url.Values{}
	params.Set("location", cityID)
	params.Set("lang", "zh")
	return params
}

// getJSON routes the call through the circuit breaker when one is installed.
// A 404 is a data answer, not an upstream fault, so it never trips the
// breaker.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out any) error {
	if c.breaker == nil {
		return c.doJSON(ctx, endpoint, rawURL, params, out)
	}

	var callErr error
	err := c.breaker.Do(func() error {
		callErr = c.doJSON(ctx, endpoint, rawURL, params, out)
		if callErr != nil && !errors.Is(callErr, ErrCityNotFound) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "rejected").Inc()
		return fmt.Errorf("%w: %s", ErrUpstreamFailure, err)
	}
	return callErr
}

func (c *Client) doJSON(ctx context.Context, endpoint, rawURL string, params url.Values, out any) error {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, rawURL, params)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("build request: %w", err)
	}

	corrID := extractCorrelationID(ctx)
	if corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.UpstreamDuration.WithLabelValues(endpoint, "error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("request timeout: %w", err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.UpstreamDuration.WithLabelValues(endpoint, status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

func (c *Client) buildRequest(ctx context.Context, rawURL string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token, err := c.signer.Bearer()
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case http.StatusNotFound:
		return fmt.Errorf("%w", ErrCityNotFound)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	return nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
