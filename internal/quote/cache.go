// Package quote keeps the freshest quote snapshot per instrument with a
// TTL, serving a configured fallback set when nothing live matches.
package quote

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedcore/internal/feed"
	"feedcore/internal/model"

	"github.com/yanun0323/logs"
)

const DefaultTTL = 60 * time.Second

// Cache is a TTL snapshot store. Expired entries are purged lazily on
// read, there is no background sweeper.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]model.QuoteSnapshot
	fallback []model.QuoteSnapshot

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]model.QuoteSnapshot),
	}
}

// SetFallback installs the snapshots served when no live entry matches
// a read. They are returned exactly as given, no filtering or sorting.
func (c *Cache) SetFallback(snapshots []model.QuoteSnapshot) {
	c.mu.Lock()
	c.fallback = append([]model.QuoteSnapshot(nil), snapshots...)
	c.mu.Unlock()
}

// Upsert stores snapshot unless the cache already holds a newer
// observation for the same instrument.
func (c *Cache) Upsert(snapshot model.QuoteSnapshot) {
	if snapshot.InstrumentID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[snapshot.InstrumentID]; ok && existing.ObservedAt.After(snapshot.ObservedAt) {
		return
	}
	c.entries[snapshot.InstrumentID] = snapshot
}

// Snapshots returns the live snapshots for the requested instruments,
// sorted by instrument id. With no ids it returns every live entry.
// When the filtered live set is empty the fallback set is returned
// verbatim.
func (c *Cache) Snapshots(ids ...string) []model.QuoteSnapshot {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if canonical, ok := model.NormalizeSymbol(id); ok {
			wanted[canonical] = struct{}{}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()

	out := make([]model.QuoteSnapshot, 0, len(c.entries))
	for id, snapshot := range c.entries {
		if len(wanted) > 0 {
			if _, ok := wanted[id]; !ok {
				continue
			}
		}
		out = append(out, snapshot)
	}
	if len(out) == 0 {
		return append([]model.QuoteSnapshot(nil), c.fallback...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// Len reports the live entry count, purging expired entries first.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
	return len(c.entries)
}

// purgeLocked removes entries whose observation age exceeds the TTL.
// An entry exactly TTL old is still live.
func (c *Cache) purgeLocked() {
	cutoff := c.now().Add(-c.ttl)
	for id, snapshot := range c.entries {
		if snapshot.ObservedAt.Before(cutoff) {
			delete(c.entries, id)
		}
	}
}

// Start consumes quote events from a connector queue until Stop or
// context cancellation.
func (c *Cache) Start(ctx context.Context, events <-chan feed.Event) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				switch event.Kind {
				case feed.EventQuote:
					c.Upsert(event.Quote)
				case feed.EventError:
					logs.Warnf("quote: feed error: %v", event.Err)
				}
			}
		}
	}()
}

// Stop halts event consumption. Cached entries stay readable.
func (c *Cache) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
