// Package plantcache holds a TTL-bounded, per-user cache of plant lists,
// mutex-guarded for concurrent reads and refreshes.
package plantcache

import (
	"context"
	"sync"
	"time"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// PlantsFetcher fetches the current plant list for a user from the backend.
type PlantsFetcher interface {
	FetchUserPlants(ctx context.Context, userID int) ([]model.Plant, error)
}

// TTL is how long a cache entry remains fresh.
const TTL = 24 * time.Hour

// Cache holds the per-user plant list used by the alert engine.
type Cache struct {
	fetcher PlantsFetcher
	log     *logging.Logger

	mu      sync.RWMutex
	entries map[int]model.PlantCacheEntry

	refreshMu   sync.Mutex
	refreshStop chan struct{}
}

// New constructs a Cache backed by fetcher.
func New(fetcher PlantsFetcher) *Cache {
	return &Cache{
		fetcher: fetcher,
		log:     logging.New("plant-cache"),
		entries: make(map[int]model.PlantCacheEntry),
	}
}

// Get returns a fresh cached entry's plants, or nil if there is none or it
// is stale. AlertEngine must only ever call Get; stale plants are only
// returned by Refresh's fallback.
func (c *Cache) Get(userID int) []model.Plant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok || e.Stale(time.Now(), TTL) {
		return nil
	}
	return e.Plants
}

// Set replaces the cached entry for userID, stamping LastRefreshed to now.
func (c *Cache) Set(userID int, plants []model.Plant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = model.PlantCacheEntry{Plants: plants, LastRefreshed: time.Now()}
}

// getStale returns the existing entry's plants regardless of staleness, or
// nil if no entry exists yet.
func (c *Cache) getStale(userID int) ([]model.Plant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[userID]
	if !ok {
		return nil, false
	}
	return e.Plants, true
}

// Refresh fetches fresh plants for userID and stores them; on fetch failure
// the existing entry (fresh or stale) is left intact and untouched, and the
// prior plants are returned as a last-resort fallback. This is the one
// accessor allowed to return a stale result; Get never does.
func (c *Cache) Refresh(ctx context.Context, userID int) ([]model.Plant, error) {
	plants, err := c.fetcher.FetchUserPlants(ctx, userID)
	if err != nil {
		c.log.Printf("refresh failed for user %d: %v", userID, err)
		if stale, ok := c.getStale(userID); ok {
			return stale, nil
		}
		return nil, err
	}
	c.Set(userID, plants)
	return plants, nil
}

// WarmUp refreshes every userID in parallel; individual failures are logged
// and do not prevent other warmups from proceeding.
func (c *Cache) WarmUp(ctx context.Context, userIDs []int) {
	var wg sync.WaitGroup
	for _, id := range userIDs {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			if _, err := c.Refresh(ctx, userID); err != nil {
				c.log.Printf("warm-up failed for user %d: %v", userID, err)
			}
		}(id)
	}
	wg.Wait()
}

// StartPeriodicRefresh runs WarmUp on a recurring schedule until Stop is
// called. Only one schedule may be active at a time.
func (c *Cache) StartPeriodicRefresh(userIDs []int, interval time.Duration) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshStop != nil {
		return
	}
	stop := make(chan struct{})
	c.refreshStop = stop
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.WarmUp(context.Background(), userIDs)
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the periodic refresh schedule, if any.
func (c *Cache) Stop() {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.refreshStop == nil {
		return
	}
	close(c.refreshStop)
	c.refreshStop = nil
}
