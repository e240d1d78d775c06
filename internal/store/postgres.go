package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres bundles the three pool-backed stores and owns migration.
type Postgres struct {
	Cities       *PostgresCityStore
	WeatherCache *PostgresWeatherCache
	Config       *PostgresConfigStore

	pool *pgxpool.Pool
}

// NewPostgres creates the Postgres stores from an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		Cities:       &PostgresCityStore{pool: pool},
		WeatherCache: &PostgresWeatherCache{pool: pool},
		Config:       &PostgresConfigStore{pool: pool},
		pool:         pool,
	}
}

// Migrate creates the tables when absent. Timestamps are BIGINT unix
// milliseconds to match the expiry arithmetic in the cache layer.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cities (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			city_id TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS weather_data (
			id BIGSERIAL PRIMARY KEY,
			city_id TEXT NOT NULL,
			data_type TEXT NOT NULL,
			app_type TEXT NOT NULL,
			xml_data TEXT NOT NULL,
			ts BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE (city_id, data_type, app_type)
		);
		CREATE TABLE IF NOT EXISTS cache_config (
			id BIGSERIAL PRIMARY KEY,
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
	`)
	return err
}

// PostgresCityStore persists name-to-cityId mappings in Postgres.
type PostgresCityStore struct {
	pool *pgxpool.Pool
}

// GetByName fetches a city row by its free-text name.
func (s *PostgresCityStore) GetByName(ctx context.Context, name string) (City, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, city_id, created_at, updated_at
		FROM cities
		WHERE name = $1
	`, name)
	return scanCity(row)
}

// GetByCityID fetches a city row by its provider city id.
func (s *PostgresCityStore) GetByCityID(ctx context.Context, cityID string) (City, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, city_id, created_at, updated_at
		FROM cities
		WHERE city_id = $1
	`, cityID)
	return scanCity(row)
}

// Upsert inserts the name-to-cityId mapping, refreshing the id on name
// collision.
func (s *PostgresCityStore) Upsert(ctx context.Context, name, cityID string) (City, error) {
	now := nowMillis()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cities (name, city_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (name) DO UPDATE SET city_id = EXCLUDED.city_id, updated_at = EXCLUDED.updated_at
		RETURNING id, name, city_id, created_at, updated_at
	`, name, cityID, now)
	city, _, err := scanCity(row)
	return city, err
}

func scanCity(row pgx.Row) (City, bool, error) {
	var c City
	if err := row.Scan(&c.ID, &c.Name, &c.CityID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return City{}, false, nil
		}
		return City{}, false, err
	}
	return c, true, nil
}

// PostgresWeatherCache persists rendered XML artifacts in Postgres.
type PostgresWeatherCache struct {
	pool *pgxpool.Pool
}

// Get returns the cache entry for the key triple if present and not expired.
func (s *PostgresWeatherCache) Get(ctx context.Context, cityID, dataType, appType string) (CacheEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, city_id, data_type, app_type, xml_data, ts, expires_at, created_at, updated_at
		FROM weather_data
		WHERE city_id = $1 AND data_type = $2 AND app_type = $3 AND expires_at > $4
	`, cityID, dataType, appType, nowMillis())
	var e CacheEntry
	if err := row.Scan(&e.ID, &e.CityID, &e.DataType, &e.AppType, &e.XMLData,
		&e.Timestamp, &e.ExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CacheEntry{}, false, nil
		}
		return CacheEntry{}, false, err
	}
	return e, true, nil
}

// Upsert writes the rendered XML for the key triple. Concurrent writers for
// the same triple race benignly: the unique constraint makes the last write
// win, and the payload is idempotent within a snapshot window.
func (s *PostgresWeatherCache) Upsert(ctx context.Context, cityID, dataType, appType, xmlData string, ttl time.Duration) error {
	now := nowMillis()
	expiresAt := now + ttl.Milliseconds()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO weather_data (city_id, data_type, app_type, xml_data, ts, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $5, $5)
		ON CONFLICT (city_id, data_type, app_type) DO UPDATE SET
			xml_data = EXCLUDED.xml_data,
			ts = EXCLUDED.ts,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, cityID, dataType, appType, xmlData, now, expiresAt)
	return err
}

// DeleteExpired removes all rows whose expiry has passed.
func (s *PostgresWeatherCache) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM weather_data WHERE expires_at <= $1`, nowMillis())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteBefore removes rows created before the cutoff, or everything when the
// cutoff is nil.
func (s *PostgresWeatherCache) DeleteBefore(ctx context.Context, before *time.Time) (int64, error) {
	if before == nil {
		tag, err := s.pool.Exec(ctx, `DELETE FROM weather_data`)
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM weather_data WHERE created_at < $1`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CitiesWithLiveForecast returns the distinct city ids holding a non-expired
// entry of any of the given forecast data types.
func (s *PostgresWeatherCache) CitiesWithLiveForecast(ctx context.Context, forecastTypes []string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT city_id
		FROM weather_data
		WHERE data_type = ANY($1) AND expires_at > $2
	`, forecastTypes, nowMillis())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PostgresConfigStore persists cache-duration configuration rows in Postgres.
type PostgresConfigStore struct {
	pool *pgxpool.Pool
}

// Get fetches one configuration row.
func (s *PostgresConfigStore) Get(ctx context.Context, key string) (ConfigEntry, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, key, value, description, created_at, updated_at
		FROM cache_config
		WHERE key = $1
	`, key)
	return scanConfig(row)
}

// Set upserts one configuration row.
func (s *PostgresConfigStore) Set(ctx context.Context, key, value, description string) (ConfigEntry, error) {
	now := nowMillis()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cache_config (key, value, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
		RETURNING id, key, value, description, created_at, updated_at
	`, key, value, description, now)
	entry, _, err := scanConfig(row)
	return entry, err
}

// All lists every configuration row.
func (s *PostgresConfigStore) All(ctx context.Context) ([]ConfigEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, key, value, description, created_at, updated_at
		FROM cache_config
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []ConfigEntry
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.ID, &e.Key, &e.Value, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes one configuration row.
func (s *PostgresConfigStore) Delete(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cache_config WHERE key = $1`, key)
	return err
}

func scanConfig(row pgx.Row) (ConfigEntry, bool, error) {
	var e ConfigEntry
	if err := row.Scan(&e.ID, &e.Key, &e.Value, &e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ConfigEntry{}, false, nil
		}
		return ConfigEntry{}, false, err
	}
	return e, true, nil
}

var (
	_ CityStore         = (*PostgresCityStore)(nil)
	_ WeatherCacheStore = (*PostgresWeatherCache)(nil)
	_ ConfigStore       = (*PostgresConfigStore)(nil)
)
