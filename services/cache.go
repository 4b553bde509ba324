package services

import (
	"context"
	"encoding/json"
	"time"

	"leaps-tracker/tracking"
)

// ReportCache stores serialized reports. Invalidate drops everything.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Invalidate(ctx context.Context)
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, []byte, time.Duration) {}
func (NopCache) Invalidate(context.Context)                         {}

// Tracker receives product events.
type Tracker interface {
	Track(e tracking.Event)
}

type nopTracker struct{}

func (nopTracker) Track(tracking.Event) {}

// cached returns the cached value under key, or computes and stores it.
// A zero ttl disables caching.
func cached[T any](ctx context.Context, c ReportCache, ttl time.Duration, key string, compute func(context.Context) (T, error)) (T, error) {
	if ttl > 0 {
		if raw, ok := c.Get(ctx, key); ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}
	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if ttl > 0 {
		if raw, err := json.Marshal(v); err == nil {
			c.Set(ctx, key, raw, ttl)
		}
	}
	return v, nil
}
