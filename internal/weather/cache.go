package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Michaelvilleneuve/windviz-go/internal/store"
)

// Cached wraps a Fetcher with a store keyed by position (rounded to three
// decimals), date and height. Cache failures only degrade to a direct fetch.
type Cached struct {
	next    Fetcher
	store   store.Store
	ttl     time.Duration
	heightM int
}

func NewCached(next Fetcher, s store.Store, ttl time.Duration, heightM int) *Cached {
	return &Cached{next: next, store: s, ttl: ttl, heightM: heightM}
}

func CacheKey(lat, lon float64, date string, heightM int) string {
	return fmt.Sprintf("weather:%.3f:%.3f:%s:%d", lat, lon, date, heightM)
}

func (c *Cached) Fetch(ctx context.Context, lat, lon float64, date string) ([]Timestep, error) {
	key := CacheKey(lat, lon, date, c.heightM)

	if raw, ok, err := c.store.Get(ctx, key); err != nil {
		slog.Warn("weather cache read failed", "key", key, "error", err)
	} else if ok {
		var cached []Timestep
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		slog.Warn("discarding unreadable weather cache entry", "key", key)
	}

	timesteps, err := c.next.Fetch(ctx, lat, lon, date)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(timesteps)
	if err != nil {
		return timesteps, nil
	}
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		slog.Warn("weather cache write failed", "key", key, "error", err)
	}
	return timesteps, nil
}
