package action

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// SnapshotFunc assembles a fresh context snapshot from the platform
// sources (location, battery, health).
type SnapshotFunc func(ctx context.Context) (*trigger.Snapshot, error)

// FreshnessCache is a ContextCache over a platform snapshot function.
// The platform may also push snapshots into it as they become available.
type FreshnessCache struct {
	// fetch assembles a fresh snapshot on demand.
	fetch SnapshotFunc
	// freshness is the age below which the cached snapshot is fresh.
	freshness time.Duration
	// clock measures snapshot age.
	clock clock.Clock

	// mu protects cached.
	mu sync.RWMutex
	// cached is the most recent snapshot, nil before the first fill.
	cached *trigger.Snapshot
}

// NewFreshnessCache creates a cache around the platform snapshot function.
func NewFreshnessCache(fetch SnapshotFunc, freshness time.Duration, clk clock.Clock) *FreshnessCache {
	if clk == nil {
		clk = clock.New()
	}

	return &FreshnessCache{
		fetch:     fetch,
		freshness: freshness,
		clock:     clk,
	}
}

// IsFresh reports whether the cached snapshot is younger than the gate.
func (c *FreshnessCache) IsFresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cached != nil && c.cached.Age(c.clock.Now()) < c.freshness
}

// Cached returns the cached snapshot, possibly stale or nil.
func (c *FreshnessCache) Cached() *trigger.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.cached.Clone()
}

// Refresh assembles a fresh snapshot, stores it and returns it.
func (c *FreshnessCache) Refresh(ctx context.Context) (*trigger.Snapshot, error) {
	snapshot, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = c.clock.Now()
	}

	c.Store(snapshot)

	return snapshot.Clone(), nil
}

// Store lets the platform push an externally assembled snapshot.
func (c *FreshnessCache) Store(snapshot *trigger.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = snapshot
}
