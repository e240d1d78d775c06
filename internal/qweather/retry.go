package qweather

import (
	"context"
	"fmt"
	"time"

	"github.com/xmmwu/weather-proxy/internal/models"
	"github.com/xmmwu/weather-proxy/internal/observability"
)

// RetryPolicy re-fetches current conditions a fixed number of times with a
// constant delay between attempts. A fetch only counts as successful when
// Validate accepts the result; an incomplete observation is treated the same
// as a transport failure and retried.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Validate    func(models.NowConditions) bool
}

// DefaultRetryPolicy matches the legacy behavior: one retry after 500ms,
// accepting only fully populated observations.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Delay:       500 * time.Millisecond,
		Validate:    CompleteConditions,
	}
}

// CompleteConditions reports whether the observation carries every field the
// legacy XML schemas require.
func CompleteConditions(now models.NowConditions) bool {
	return now.Temp != "" &&
		now.Humidity != "" &&
		now.Pressure != "" &&
		now.WindDir != "" &&
		now.WindSpeed != "" &&
		now.WindScale != ""
}

// Do runs fetch up to MaxAttempts times, sleeping Delay between attempts.
// Returns the first validated result, or the last error once attempts are
// exhausted.
func (p RetryPolicy) Do(ctx context.Context, fetch func(context.Context) (models.NowConditions, error)) (models.NowConditions, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return models.NowConditions{}, ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		now, err := fetch(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if p.Validate != nil && !p.Validate(now) {
			lastErr = fmt.Errorf("incomplete observation")
			continue
		}
		return now, nil
	}

	return models.NowConditions{}, fmt.Errorf("exhausted retries: %w", lastErr)
}
