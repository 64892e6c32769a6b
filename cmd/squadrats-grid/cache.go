package main

import (
	"context"
	"fmt"
	"io"

	"github.com/mohammed-shakir/squadrats-grid/internal/cache/coveragecache"
	"github.com/mohammed-shakir/squadrats-grid/internal/cache/redisstore"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openCache connects the coverage cache when CACHE_ENABLED is set. It returns
// a nil cache otherwise.
func (a *app) openCache(ctx context.Context) (*coveragecache.Cache, io.Closer, error) {
	cc := a.cfg.Cache
	if !cc.Enabled {
		return nil, nopCloser{}, nil
	}
	rc, err := redisstore.New(ctx, cc.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	c, err := coveragecache.New(coveragecache.Config{
		LRUSize:   cc.LRUSize,
		TTL:       cc.TTL,
		OpTimeout: cc.OpTimeout,
	}, rc, a.log)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	a.log.Info("coverage cache enabled", "redis", cc.RedisAddr, "lru", cc.LRUSize, "ttl", cc.TTL)
	return c, rc, nil
}
