// Package store holds the persistent tier: city lookups, rendered-XML cache
// entries and cache-duration configuration rows. Implementations exist for
// Postgres (pgx) and in-memory (tests, DB-less operation).
package store

import (
	"context"
	"time"
)

// City maps a free-text city name to its provider city id. Rows are created
// on first geocoding lookup and kept forever; the name-to-id mapping is
// treated as immutable.
type City struct {
	ID        int64
	Name      string
	CityID    string
	CreatedAt int64 // unix milliseconds
	UpdatedAt int64
}

// CacheEntry is one persisted rendered-XML artifact, unique by
// (cityId, dataType, appType). An entry is valid only while now < ExpiresAt;
// expired rows stay in place until the cleanup sweep deletes them, so readers
// filter on expiry themselves.
type CacheEntry struct {
	ID        int64
	CityID    string
	DataType  string
	AppType   string
	XMLData   string
	Timestamp int64 // unix milliseconds, write time
	ExpiresAt int64
	CreatedAt int64
	UpdatedAt int64
}

// ConfigEntry is one cache-duration configuration row.
type ConfigEntry struct {
	ID          int64
	Key         string
	Value       string
	Description string
	CreatedAt   int64
	UpdatedAt   int64
}

// CityStore persists name-to-cityId mappings.
type CityStore interface {
	GetByName(ctx context.Context, name string) (City, bool, error)
	GetByCityID(ctx context.Context, cityID string) (City, bool, error)
	Upsert(ctx context.Context, name, cityID string) (City, error)
}

// WeatherCacheStore persists rendered XML keyed by (cityId, dataType, appType).
type WeatherCacheStore interface {
	// Get returns the entry if present and not expired.
	Get(ctx context.Context, cityID, dataType, appType string) (CacheEntry, bool, error)
	// Upsert writes the entry with expiresAt = now + ttl.
	Upsert(ctx context.Context, cityID, dataType, appType, xmlData string, ttl time.Duration) error
	// DeleteExpired removes rows whose expiry has passed and reports how many.
	DeleteExpired(ctx context.Context) (int64, error)
	// DeleteBefore removes rows created before the cutoff; a nil cutoff
	// removes everything. Returns the number of deleted rows.
	DeleteBefore(ctx context.Context, before *time.Time) (int64, error)
	// CitiesWithLiveForecast returns the distinct city ids that hold a
	// non-expired forecast-type entry.
	CitiesWithLiveForecast(ctx context.Context, forecastTypes []string) ([]string, error)
}

// ConfigStore persists cache-duration configuration rows.
type ConfigStore interface {
	Get(ctx context.Context, key string) (ConfigEntry, bool, error)
	Set(ctx context.Context, key, value, description string) (ConfigEntry, error)
	All(ctx context.Context) ([]ConfigEntry, error)
	Delete(ctx context.Context, key string) error
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
