// Package coveragecache keeps computed coverages in a process-local LRU in
// front of an optional shared redis tier.
package coveragecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/mohammed-shakir/squadrats-grid/internal/cache/keys"
	"github.com/mohammed-shakir/squadrats-grid/internal/core/observability"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
)

// Store is the shared tier; *redisstore.Client satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DelPattern(ctx context.Context, pattern string) (int, error)
}

type Config struct {
	LRUSize   int
	TTL       time.Duration
	OpTimeout time.Duration
}

// Cache values are shared between callers and must be treated as read-only.
type Cache struct {
	cfg   Config
	front *lru.Cache[string, coverage.Coverage]
	back  Store
	log   *slog.Logger
	group singleflight.Group
}

func New(cfg Config, back Store, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LRUSize <= 0 {
		cfg.LRUSize = 256
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	front, err := lru.New[string, coverage.Coverage](cfg.LRUSize)
	if err != nil {
		return nil, fmt.Errorf("coverage lru: %w", err)
	}
	return &Cache{cfg: cfg, front: front, back: back, log: logger}, nil
}

// Get looks in the LRU, then in the shared tier, promoting shared hits.
// Shared-tier failures are logged and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (coverage.Coverage, bool) {
	if cov, ok := c.front.Get(key); ok {
		observability.IncCacheHit("lru")
		return cov, true
	}
	observability.IncCacheMiss("lru")
	if c.back == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	b, ok, err := c.back.Get(opCtx, key)
	if err != nil {
		c.log.Warn("coverage cache read failed", "key", key, "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	cov, err := decode(b)
	if err != nil {
		c.log.Warn("coverage cache entry corrupt", "key", key, "err", err)
		return nil, false
	}
	c.front.Add(key, cov)
	return cov, true
}

func (c *Cache) Put(ctx context.Context, key string, cov coverage.Coverage) {
	c.front.Add(key, cov)
	if c.back == nil {
		return
	}
	b, err := encode(cov)
	if err != nil {
		c.log.Warn("coverage encode failed", "key", key, "err", err)
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.back.Set(opCtx, key, b, c.cfg.TTL); err != nil {
		c.log.Warn("coverage cache write failed", "key", key, "err", err)
	}
}

// GetOrCompute returns the cached coverage for key or runs compute once for
// all concurrent callers asking for the same key, storing its result.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func() (coverage.Coverage, error)) (coverage.Coverage, bool, error) {
	if cov, ok := c.Get(ctx, key); ok {
		return cov, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		cov, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(ctx, key, cov)
		return cov, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(coverage.Coverage), false, nil
}

// InvalidateRegion drops every cached coverage of region from both tiers
// and returns the number of entries removed.
func (c *Cache) InvalidateRegion(ctx context.Context, region string) (int, error) {
	prefix := keys.RegionPrefix(region)
	removed := 0
	for _, k := range c.front.Keys() {
		if strings.HasPrefix(k, prefix) && c.front.Remove(k) {
			removed++
		}
	}
	if c.back == nil {
		return removed, nil
	}
	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	n, err := c.back.DelPattern(opCtx, keys.RegionPattern(region))
	if err != nil {
		return removed, fmt.Errorf("invalidate region %s: %w", region, err)
	}
	return removed + n, nil
}

func (c *Cache) Len() int { return c.front.Len() }

// wire form: row -> [[start, end], ...]
type wire map[int][][2]int

func encode(cov coverage.Coverage) ([]byte, error) {
	w := make(wire, len(cov))
	for y, rs := range cov {
		out := make([][2]int, len(rs))
		for i, r := range rs {
			out[i] = [2]int{r.Start, r.End}
		}
		w[y] = out
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal coverage: %w", err)
	}
	return b, nil
}

func decode(b []byte) (coverage.Coverage, error) {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("unmarshal coverage: %w", err)
	}
	cov := make(coverage.Coverage, len(w))
	for y, rs := range w {
		out := make([]ranges.Range, len(rs))
		for i, r := range rs {
			if r[1] < r[0] {
				return nil, fmt.Errorf("row %d: inverted range %v", y, r)
			}
			out[i] = ranges.Range{Start: r[0], End: r[1]}
		}
		cov[y] = out
	}
	return cov, nil
}
