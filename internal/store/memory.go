package store

import (
	"context"
	"sync"
	"time"
)

// MemoryCityStore is an in-memory CityStore for tests and DB-less operation.
type MemoryCityStore struct {
	mu     sync.RWMutex
	byName map[string]City
	byID   map[string]City
	nextID int64
}

// NewMemoryCityStore creates an empty in-memory city store.
func NewMemoryCityStore() *MemoryCityStore {
	return &MemoryCityStore{
		byName: make(map[string]City),
		byID:   make(map[string]City),
		nextID: 1,
	}
}

func (s *MemoryCityStore) GetByName(ctx context.Context, name string) (City, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byName[name]
	return c, ok, nil
}

func (s *MemoryCityStore) GetByCityID(ctx context.Context, cityID string) (City, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[cityID]
	return c, ok, nil
}

func (s *MemoryCityStore) Upsert(ctx context.Context, name, cityID string) (City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMillis()
	if existing, ok := s.byName[name]; ok {
		delete(s.byID, existing.CityID)
		existing.CityID = cityID
		existing.UpdatedAt = now
		s.byName[name] = existing
		s.byID[cityID] = existing
		return existing, nil
	}
	c := City{ID: s.nextID, Name: name, CityID: cityID, CreatedAt: now, UpdatedAt: now}
	s.nextID++
	s.byName[name] = c
	s.byID[cityID] = c
	return c, nil
}

type cacheKey struct {
	cityID   string
	dataType string
	appType  string
}

// MemoryWeatherCache is an in-memory WeatherCacheStore. Expired entries stay
// in place until DeleteExpired runs, matching the persistent-tier semantics.
type MemoryWeatherCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]CacheEntry
	nextID  int64
}

// NewMemoryWeatherCache creates an empty in-memory weather cache store.
func NewMemoryWeatherCache() *MemoryWeatherCache {
	return &MemoryWeatherCache{
		entries: make(map[cacheKey]CacheEntry),
		nextID:  1,
	}
}

func (s *MemoryWeatherCache) Get(ctx context.Context, cityID, dataType, appType string) (CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[cacheKey{cityID, dataType, appType}]
	if !ok || e.ExpiresAt <= nowMillis() {
		return CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (s *MemoryWeatherCache) Upsert(ctx context.Context, cityID, dataType, appType, xmlData string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMillis()
	key := cacheKey{cityID, dataType, appType}
	if existing, ok := s.entries[key]; ok {
		existing.XMLData = xmlData
		existing.Timestamp = now
		existing.ExpiresAt = now + ttl.Milliseconds()
		existing.UpdatedAt = now
		s.entries[key] = existing
		return nil
	}
	s.entries[key] = CacheEntry{
		ID:        s.nextID,
		CityID:    cityID,
		DataType:  dataType,
		AppType:   appType,
		XMLData:   xmlData,
		Timestamp: now,
		ExpiresAt: now + ttl.Milliseconds(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	return nil
}

func (s *MemoryWeatherCache) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMillis()
	var deleted int64
	for key, e := range s.entries {
		if e.ExpiresAt <= now {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryWeatherCache) DeleteBefore(ctx context.Context, before *time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, e := range s.entries {
		if before == nil || e.CreatedAt < before.UnixMilli() {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryWeatherCache) CitiesWithLiveForecast(ctx context.Context, forecastTypes []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := nowMillis()
	seen := make(map[string]struct{})
	var ids []string
	for _, e := range s.entries {
		if e.ExpiresAt <= now {
			continue
		}
		for _, ft := range forecastTypes {
			if e.DataType == ft {
				if _, dup := seen[e.CityID]; !dup {
					seen[e.CityID] = struct{}{}
					ids = append(ids, e.CityID)
				}
				break
			}
		}
	}
	return ids, nil
}

// MemoryConfigStore is an in-memory ConfigStore.
type MemoryConfigStore struct {
	mu      sync.RWMutex
	entries map[string]ConfigEntry
	nextID  int64
}

// NewMemoryConfigStore creates an empty in-memory config store.
func NewMemoryConfigStore() *MemoryConfigStore {
	return &MemoryConfigStore{
		entries: make(map[string]ConfigEntry),
		nextID:  1,
	}
}

func (s *MemoryConfigStore) Get(ctx context.Context, key string) (ConfigEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

func (s *MemoryConfigStore) Set(ctx context.Context, key, value, description string) (ConfigEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := nowMillis()
	if existing, ok := s.entries[key]; ok {
		existing.Value = value
		existing.Description = description
		existing.UpdatedAt = now
		s.entries[key] = existing
		return existing, nil
	}
	e := ConfigEntry{ID: s.nextID, Key: key, Value: value, Description: description, CreatedAt: now, UpdatedAt: now}
	s.nextID++
	s.entries[key] = e
	return e, nil
}

func (s *MemoryConfigStore) All(ctx context.Context) ([]ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]ConfigEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *MemoryConfigStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

var (
	_ CityStore         = (*MemoryCityStore)(nil)
	_ WeatherCacheStore = (*MemoryWeatherCache)(nil)
	_ ConfigStore       = (*MemoryConfigStore)(nil)
)
