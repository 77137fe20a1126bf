package review

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StepsSource fetches the raw review-steps setting. The value is passed to
// NormalizeDurations, so any shape is tolerated.
type StepsSource interface {
	ReviewSteps(ctx context.Context) (any, error)
}

// DurationsCache memoizes the user's review durations. The first successful
// fetch is kept until Invalidate is called. A failed fetch yields the defaults
// and is retried on the next call.
type DurationsCache struct {
	source StepsSource
	logger *zap.Logger

	mu     sync.Mutex
	cached *ReviewDurations
	gen    uint64
	group  singleflight.Group
}

// NewDurationsCache creates a cache over source. A nil logger discards output.
func NewDurationsCache(source StepsSource, logger *zap.Logger) *DurationsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DurationsCache{source: source, logger: logger}
}

// Get returns the cached durations, fetching them on first use. It never fails.
func (c *DurationsCache) Get(ctx context.Context) ReviewDurations {
	c.mu.Lock()
	if c.cached != nil {
		d := *c.cached
		c.mu.Unlock()
		return d
	}
	gen := c.gen
	c.mu.Unlock()

	if c.source == nil {
		return DefaultDurations()
	}

	v, _, _ := c.group.Do("durations", func() (any, error) {
		raw, err := c.source.ReviewSteps(ctx)
		if err != nil {
			c.logger.Warn("Failed to load review settings, using defaults", zap.Error(err))
			return DefaultDurations(), nil
		}
		d := NormalizeDurations(raw)
		c.mu.Lock()
		// A fetch that raced with Invalidate must not repopulate the cache.
		if c.gen == gen {
			c.cached = &d
		}
		c.mu.Unlock()
		c.logger.Debug("Loaded review durations",
			zap.Float64("again", d.Again),
			zap.Float64("hard", d.Hard),
			zap.Float64("good", d.Good),
			zap.Float64("easy", d.Easy))
		return d, nil
	})
	return v.(ReviewDurations)
}

// Invalidate drops the cached value; the next Get fetches again.
func (c *DurationsCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.gen++
	c.mu.Unlock()
	c.group.Forget("durations")
}

// cachedValue reports the memoized value without fetching.
func (c *DurationsCache) cachedValue() (ReviewDurations, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return ReviewDurations{}, false
	}
	return *c.cached, true
}
