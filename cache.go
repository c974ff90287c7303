package stagehand

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrUnknownSection is returned for sections outside the configured list.
var ErrUnknownSection = errors.New("stagehand: unknown section")

// SectionLoader reads one section's snapshot from the store.
type SectionLoader func(ctx context.Context, section string) (SectionSnapshot, error)

// SectionCache is an in-memory cache of the published snapshots of the
// configured sections, with TTL. Publishing invalidates it.
type SectionCache struct {
	mu        sync.RWMutex
	order     []string
	snapshots map[string]SectionSnapshot
	fetched   time.Time
	ttl       time.Duration
	load      SectionLoader
}

// NewSectionCache creates a SectionCache for sections, in page order.
func NewSectionCache(sections []string, ttl time.Duration, load SectionLoader) *SectionCache {
	return &SectionCache{order: sections, ttl: ttl, load: load}
}

func (c *SectionCache) valid() bool {
	return c.snapshots != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *SectionCache) Invalidate() {
	c.mu.Lock()
	c.snapshots = nil
	c.mu.Unlock()
}

func (c *SectionCache) reload(ctx context.Context) error {
	if c.valid() {
		return nil
	}
	loaded := make([]SectionSnapshot, len(c.order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range c.order {
		i, name := i, name
		g.Go(func() error {
			snap, err := c.load(gctx, name)
			if err != nil {
				return err
			}
			loaded[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	snapshots := make(map[string]SectionSnapshot, len(loaded))
	for _, snap := range loaded {
		snapshots[snap.Section] = snap
	}
	c.snapshots = snapshots
	c.fetched = time.Now()
	return nil
}

// ensureLoaded returns the cached snapshots after ensuring the cache is
// fresh. It tries a read lock first; only takes a write lock if a reload is
// needed.
func (c *SectionCache) ensureLoaded(ctx context.Context) (map[string]SectionSnapshot, error) {
	c.mu.RLock()
	if c.valid() {
		snapshots := c.snapshots
		c.mu.RUnlock()
		return snapshots, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.reload(ctx); err != nil {
		return nil, err
	}
	return c.snapshots, nil
}

// Sections returns the published snapshot of every section, in page order.
func (c *SectionCache) Sections(ctx context.Context) ([]SectionSnapshot, error) {
	snapshots, err := c.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SectionSnapshot, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, snapshots[name])
	}
	return out, nil
}

// Section returns the published snapshot of one section.
func (c *SectionCache) Section(ctx context.Context, name string) (SectionSnapshot, error) {
	snapshots, err := c.ensureLoaded(ctx)
	if err != nil {
		return SectionSnapshot{}, err
	}
	snap, ok := snapshots[name]
	if !ok {
		return SectionSnapshot{}, ErrUnknownSection
	}
	return snap, nil
}

// Known reports whether name is one of the configured sections.
func (c *SectionCache) Known(name string) bool {
	for _, s := range c.order {
		if s == name {
			return true
		}
	}
	return false
}
