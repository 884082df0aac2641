package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

// MemcachedCache stores alert sets in memcached as JSON. Sharing one cache
// between instances means the feed is scraped once per TTL for the whole
// fleet instead of once per process.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache connects to the given memcached servers and verifies
// reachability before returning.
func NewMemcachedCache(addrs []string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	if len(addrs) == 0 {
		return nil, errors.New("memcached: no server addresses provided")
	}

	client := memcache.New(addrs...)
	client.Timeout = timeout
	client.MaxIdleConns = maxIdleConns

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("memcached ping failed: %w", err)
	}
	return &MemcachedCache{client: client}, nil
}

// Ping verifies the servers are reachable.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close releases idle connections.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}

func (c *MemcachedCache) Get(_ context.Context, key string) ([]models.Alert, bool, error) {
	item, err := c.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("memcached get %q: %w", key, err)
	}

	var alerts []models.Alert
	if err := json.Unmarshal(item.Value, &alerts); err != nil {
		// A corrupt entry reads as a miss so the caller re-scrapes.
		return nil, false, nil
	}
	return alerts, true, nil
}

func (c *MemcachedCache) Set(_ context.Context, key string, alerts []models.Alert, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("memcached marshal %q: %w", key, err)
	}
	if err := c.client.Set(&memcache.Item{
		Key:        key,
		Value:      data,
		Expiration: int32(ttl.Seconds()),
	}); err != nil {
		return fmt.Errorf("memcached set %q: %w", key, err)
	}
	return nil
}
