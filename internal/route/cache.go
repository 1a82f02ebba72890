package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/driver-agent/internal/models"
)

// Cache is a tiny in-memory TTL cache of polylines keyed by the endpoint
// pair, wrapped around another Planner. Repeated legs between the same
// pickup and drop skip the routing round trip.
type Cache struct {
	mu    sync.RWMutex
	next  Planner
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	line []models.Coord
	ts   time.Time
}

func NewCache(next Planner, ttl time.Duration) *Cache {
	return &Cache{next: next, store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmtCoord(a) + "->" + fmtCoord(b)
}

func fmtCoord(c models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

func (c *Cache) Route(ctx context.Context, from, to models.Coord) ([]models.Coord, error) {
	k := keyFor(from, to)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok && time.Since(e.ts) <= c.ttl {
		return e.line, nil
	}
	line, err := c.next.Route(ctx, from, to)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.store[k] = cacheEntry{line: line, ts: time.Now()}
	c.mu.Unlock()
	return line, nil
}
