package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xmmwu/weather-proxy/internal/observability"
	"github.com/xmmwu/weather-proxy/internal/store"
)

// purgeZone interprets zoneless "YYYY-MM-DD hh:mm:ss" cutoffs. The operators
// of the legacy fleet work in UTC+8.
var purgeZone = time.FixedZone("UTC+8", 8*60*60)

const invalidBeforeMessage = "Invalid before parameter. Use timestamp (ms), " +
	"ISO date string (with timezone), or local time (YYYY-MM-DD hh:mm:ss, UTC+8)"

type configView struct {
	ID          int64  `json:"id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

func toConfigView(e store.ConfigEntry) configView {
	return configView{
		ID:          e.ID,
		Key:         e.Key,
		Value:       e.Value,
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

// ListCacheConfigs handles GET /api/config/cache.
func (h *Handler) ListCacheConfigs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.config.All(r.Context())
	if err != nil {
		h.logger.Error("list cache configs failed", zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to get cache configs")
		return
	}
	views := make([]configView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toConfigView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "data": views})
}

// GetCacheConfig handles GET /api/config/cache/{key}.
func (h *Handler) GetCacheConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	entry, ok, err := h.config.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("get cache config failed", zap.String("key", key), zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to get cache config")
		return
	}
	if !ok {
		writeConfigError(w, http.StatusNotFound, "Cache config not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "data": toConfigView(entry)})
}

type configPayload struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// PutCacheConfig handles PUT /api/config/cache/{key}.
func (h *Handler) PutCacheConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	var body configPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == "" {
		writeConfigError(w, http.StatusBadRequest, "Missing required field: value")
		return
	}
	entry, err := h.config.Set(r.Context(), key, body.Value, body.Description)
	if err != nil {
		h.logger.Error("update cache config failed", zap.String("key", key), zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to update cache config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "data": toConfigView(entry)})
}

// CreateCacheConfig handles POST /api/config/cache.
func (h *Handler) CreateCacheConfig(w http.ResponseWriter, r *http.Request) {
	var body configPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Key == "" || body.Value == "" {
		writeConfigError(w, http.StatusBadRequest, "Missing required fields: key and value")
		return
	}
	entry, err := h.config.Set(r.Context(), body.Key, body.Value, body.Description)
	if err != nil {
		h.logger.Error("create cache config failed", zap.String("key", body.Key), zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to create cache config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "data": toConfigView(entry)})
}

// DeleteCacheConfig handles DELETE /api/config/cache/{key}.
func (h *Handler) DeleteCacheConfig(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := h.config.Delete(r.Context(), key); err != nil {
		h.logger.Error("delete cache config failed", zap.String("key", key), zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to delete cache config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "Cache config deleted successfully",
	})
}

// PurgeWeatherCache handles DELETE /api/config/weather-cache. Without a
// before parameter every cached row is removed.
func (h *Handler) PurgeWeatherCache(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("before")
	before, err := parseBefore(raw)
	if err != nil {
		writeConfigError(w, http.StatusBadRequest, invalidBeforeMessage)
		return
	}

	deleted, err := h.cacheRows.DeleteBefore(r.Context(), before)
	if err != nil {
		h.logger.Error("weather cache purge failed", zap.Error(err))
		writeConfigError(w, http.StatusInternalServerError, "Failed to clear weather cache")
		return
	}
	observability.PurgedEntriesTotal.WithLabelValues("admin").Add(float64(deleted))

	message := fmt.Sprintf("Deleted all %d weather data records", deleted)
	if before != nil {
		message = fmt.Sprintf("Deleted %d weather data records before %s", deleted, raw)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": message,
		"data":    map[string]int64{"deletedCount": deleted},
	})
}

// parseBefore accepts a millisecond timestamp, an ISO-8601 value with zone,
// or a zoneless "YYYY-MM-DD hh:mm:ss" read as UTC+8. Empty input means no
// cutoff.
func parseBefore(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}

	if isAllDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		t := time.UnixMilli(ms)
		return &t, nil
	}

	if strings.ContainsAny(raw, "TZ") {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, raw); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("unparseable ISO cutoff: %q", raw)
	}

	t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, purgeZone)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func writeConfigError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
