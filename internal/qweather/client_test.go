package qweather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xmmwu/weather-proxy/internal/circuitbreaker"
	"github.com/xmmwu/weather-proxy/internal/models"
	"github.com/xmmwu/weather-proxy/internal/store"
)

func testSigner(t *testing.T) *TokenSigner {
	t.Helper()
	pemKey, _ := testKeyPEM(t)
	signer, err := NewTokenSigner("cred-id", "project-id", pemKey)
	if err != nil {
		t.Fatalf("NewTokenSigner() error = %v", err)
	}
	return signer
}

func testClient(t *testing.T, baseURL string, cities store.CityStore) *Client {
	t.Helper()
	c, err := NewClient(baseURL, testSigner(t), cities, 2*time.Second, RetryPolicy{
		MaxAttempts: 2,
		Delay:       10 * time.Millisecond,
		Validate:    CompleteConditions,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

const (
	geoBody = `{"code":"200","location":[{"id":"101280601","name":"深圳","lat":"22.54700","lon":"114.08595"}]}`
	nowBody = `{"code":"200","updateTime":"2024-01-15T10:35+08:00","now":{"temp":"22","icon":"100","humidity":"60",
		"pressure":"1013","windDir":"东南风","windSpeed":"15","windScale":"3"}}`
	dailyBody = `{"code":"200","updateTime":"2024-01-15T08:00+08:00","daily":[
		{"fxDate":"2024-01-15","tempMin":"15","tempMax":"24","iconDay":"100","iconNight":"150",
		 "windDirDay":"东风","windScaleDay":"3-4","sunrise":"07:01","sunset":"18:02"},
		{"fxDate":"2024-01-16","tempMin":"16","tempMax":"25","iconDay":"101","iconNight":"151"}]}`
	hourlyBody  = `{"code":"200","updateTime":"2024-01-15T10:00+08:00","hourly":[{"fxTime":"2024-01-15T11:00+08:00","temp":"22","icon":"100","windDir":"东风","windScale":"3","windSpeed":"12"}]}`
	indicesBody = `{"code":"200","updateTime":"2024-01-15T06:00+08:00","daily":[{"date":"2024-01-15","type":"3","name":"穿衣指数","category":"舒适","text":"建议穿长袖"}]}`
)

// weatherTestServer serves the four weather endpoints plus geo lookup, and
// checks that every request carries a bearer token.
func weatherTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("lang"); got != "zh" {
			t.Errorf("lang = %q on %s, want zh", got, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/geo/v2/city/lookup":
			fmt.Fprint(w, geoBody)
		case "/v7/weather/now":
			fmt.Fprint(w, nowBody)
		case "/v7/weather/7d":
			fmt.Fprint(w, dailyBody)
		case "/v7/weather/24h":
			fmt.Fprint(w, hourlyBody)
		case "/v7/indices/1d":
			if r.URL.Query().Get("type") != "0" {
				t.Errorf("indices type = %q, want 0", r.URL.Query().Get("type"))
			}
			fmt.Fprint(w, indicesBody)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestResolveCity_GeoLookupAndPersist(t *testing.T) {
	server := weatherTestServer(t)
	defer server.Close()

	cities := store.NewMemoryCityStore()
	client := testClient(t, server.URL, cities)

	city, err := client.ResolveCity(context.Background(), "深圳")
	if err != nil {
		t.Fatalf("ResolveCity() error = %v", err)
	}
	if city.ID != "101280601" || city.Name != "深圳" {
		t.Errorf("ResolveCity() = %+v, want id 101280601 name 深圳", city)
	}

	// The mapping must now be in the store.
	cached, ok, err := cities.GetByName(context.Background(), "深圳")
	if err != nil || !ok {
		t.Fatalf("GetByName() after resolve = %v, %v, %v", cached, ok, err)
	}
	if cached.CityID != "101280601" {
		t.Errorf("persisted cityId = %q, want 101280601", cached.CityID)
	}
}

func TestResolveCity_StoreHitSkipsNetwork(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cities := store.NewMemoryCityStore()
	if _, err := cities.Upsert(context.Background(), "深圳", "101280601"); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	client := testClient(t, server.URL, cities)

	byName, err := client.ResolveCity(context.Background(), "深圳")
	if err != nil {
		t.Fatalf("ResolveCity(name) error = %v", err)
	}
	byID, err := client.ResolveCity(context.Background(), "101280601")
	if err != nil {
		t.Fatalf("ResolveCity(cityId) error = %v", err)
	}
	if byName.ID != "101280601" || byID.Name != "深圳" {
		t.Errorf("store hits = %+v / %+v", byName, byID)
	}
	if hits.Load() != 0 {
		t.Errorf("geo API hit %d times, want 0", hits.Load())
	}
}

func TestResolveCity_EmptyMatchList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"404","location":[]}`)
	}))
	defer server.Close()

	client := testClient(t, server.URL, store.NewMemoryCityStore())
	_, err := client.ResolveCity(context.Background(), "atlantis")
	if !errors.Is(err, ErrCityNotFound) {
		t.Errorf("ResolveCity() error = %v, want ErrCityNotFound", err)
	}
}

func TestFetchWeather_BuildsFullSnapshot(t *testing.T) {
	server := weatherTestServer(t)
	defer server.Close()

	client := testClient(t, server.URL, nil)
	snap, err := client.FetchWeather(context.Background(), models.City{ID: "101280601", Name: "深圳"})
	if err != nil {
		t.Fatalf("FetchWeather() error = %v", err)
	}

	if snap.Now.Temp != "22" || snap.Now.WindDir != "东南风" {
		t.Errorf("now = %+v", snap.Now)
	}
	if snap.NowUpdateTime != "2024-01-15T10:35+08:00" {
		t.Errorf("NowUpdateTime = %q", snap.NowUpdateTime)
	}
	if len(snap.Forecast) != 2 || snap.Forecast[0].TempMax != "24" {
		t.Errorf("forecast = %+v", snap.Forecast)
	}
	if len(snap.Hourly) != 1 || snap.Hourly[0].Temp != "22" {
		t.Errorf("hourly = %+v", snap.Hourly)
	}
	if len(snap.Indices) != 1 || snap.Indices[0].Name != "穿衣指数" {
		t.Errorf("indices = %+v", snap.Indices)
	}
	// Sunrise and sunset come from the first forecast day.
	if snap.City.Sunrise != "07:01" || snap.City.Sunset != "18:02" {
		t.Errorf("city sun times = %q / %q", snap.City.Sunrise, snap.City.Sunset)
	}
}

func TestFetchWeather_RetriesIncompleteConditions(t *testing.T) {
	var nowCalls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v7/weather/now":
			if nowCalls.Add(1) == 1 {
				// First attempt is missing windSpeed and windScale.
				fmt.Fprint(w, `{"code":"200","updateTime":"2024-01-15T10:35+08:00","now":{"temp":"22","icon":"100","humidity":"60","pressure":"1013","windDir":"东南风"}}`)
				return
			}
			fmt.Fprint(w, nowBody)
		case "/v7/weather/7d":
			fmt.Fprint(w, dailyBody)
		case "/v7/weather/24h":
			fmt.Fprint(w, hourlyBody)
		case "/v7/indices/1d":
			fmt.Fprint(w, indicesBody)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)
	snap, err := client.FetchWeather(context.Background(), models.City{ID: "101280601"})
	if err != nil {
		t.Fatalf("FetchWeather() error = %v", err)
	}
	if nowCalls.Load() != 2 {
		t.Errorf("now endpoint called %d times, want 2", nowCalls.Load())
	}
	if snap.Now.WindSpeed != "15" {
		t.Errorf("now = %+v, want the retried observation", snap.Now)
	}
}

func TestFetchWeather_ConditionsUnavailableAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v7/weather/now" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, dailyBody)
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)
	_, err := client.FetchWeather(context.Background(), models.City{ID: "101280601"})
	if !errors.Is(err, ErrConditionsUnavailable) {
		t.Errorf("FetchWeather() error = %v, want ErrConditionsUnavailable", err)
	}
}

func TestFetchWeather_ForecastFailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v7/weather/now":
			fmt.Fprint(w, nowBody)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	client := testClient(t, server.URL, nil)
	_, err := client.FetchWeather(context.Background(), models.City{ID: "101280601"})
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Errorf("FetchWeather() error = %v, want ErrUpstreamFailure", err)
	}
}

func TestCompleteConditions(t *testing.T) {
	full := models.NowConditions{
		Temp: "22", Humidity: "60", Pressure: "1013",
		WindDir: "东风", WindSpeed: "15", WindScale: "3",
	}
	if !CompleteConditions(full) {
		t.Error("CompleteConditions(full) = false, want true")
	}

	missing := full
	missing.Pressure = ""
	if CompleteConditions(missing) {
		t.Error("CompleteConditions(missing pressure) = true, want false")
	}
}

func TestRetryPolicy_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, Delay: time.Minute, Validate: CompleteConditions}

	calls := 0
	cancel()
	_, err := policy.Do(ctx, func(context.Context) (models.NowConditions, error) {
		calls++
		return models.NowConditions{}, errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("fetch called %d times, want 1 (no sleep after cancel)", calls)
	}
}

func TestClient_BreakerRejectsAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, nil)
	client.SetBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
	}))

	city := models.City{ID: "101280601", Name: "深圳"}
	// Each fetch attempts now twice via the retry policy, so one fetch trips
	// the threshold of 2.
	if _, err := client.FetchWeather(context.Background(), city); !errors.Is(err, ErrConditionsUnavailable) {
		t.Fatalf("first fetch error = %v, want ErrConditionsUnavailable", err)
	}
	before := calls.Load()

	if _, err := client.FetchWeather(context.Background(), city); err == nil {
		t.Fatal("second fetch should fail while the breaker is open")
	}
	if calls.Load() != before {
		t.Errorf("open breaker made %d extra upstream calls", calls.Load()-before)
	}
}

func TestClient_BreakerIgnoresCityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"200","location":[]}`)
	}))
	defer srv.Close()

	client := testClient(t, srv.URL, nil)
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 1, Cooldown: time.Minute})
	client.SetBreaker(breaker)

	for i := 0; i < 3; i++ {
		if _, err := client.ResolveCity(context.Background(), "nowhere"); !errors.Is(err, ErrCityNotFound) {
			t.Fatalf("lookup %d error = %v, want ErrCityNotFound", i, err)
		}
	}
	if breaker.State() != circuitbreaker.StateClosed {
		t.Errorf("breaker state = %v, missing cities should not trip it", breaker.State())
	}
}
