package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

// Cache stores scraped alert sets for a short TTL. The second return of Get
// distinguishes a miss from an empty alert set, which is a perfectly valid
// cached value on a quiet day.
type Cache interface {
	Get(ctx context.Context, key string) ([]models.Alert, bool, error)
	Set(ctx context.Context, key string, alerts []models.Alert, ttl time.Duration) error
}

type memoryEntry struct {
	alerts    []models.Alert
	expiresAt time.Time
}

// MemoryCache is a process-local Cache guarded by a mutex. Good enough for a
// single instance; use the memcached backend when running more than one.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clockwork.Clock
}

// NewMemoryCache returns an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		clock:   clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source (tests).
func (c *MemoryCache) SetClock(clock clockwork.Clock) {
	c.clock = clock
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]models.Alert, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.alerts, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, alerts []models.Alert, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{alerts: alerts, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}
