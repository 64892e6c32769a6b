package coveragecache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/squadrats-grid/internal/cache/keys"
	"github.com/mohammed-shakir/squadrats-grid/internal/cache/redisstore"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

func sample() coverage.Coverage {
	return coverage.Coverage{
		5312: {{Start: 9032, End: 9040}, {Start: 9050, End: 9050}},
		5313: {{Start: 9030, End: 9041}},
	}
}

func newRedis(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func key(region string, z tile.Zoom) string {
	return keys.Key(region, "contour", z, false, 42)
}

func TestLRUOnly_PutGet(t *testing.T) {
	c, err := New(Config{LRUSize: 2}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, ok := c.Get(ctx, key("PL-22", 14)); ok {
		t.Fatalf("hit on empty cache")
	}
	c.Put(ctx, key("PL-22", 14), sample())
	got, ok := c.Get(ctx, key("PL-22", 14))
	if !ok {
		t.Fatalf("miss after Put")
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	c.Put(ctx, key("PL-28", 14), sample())
	c.Put(ctx, key("PL-30", 14), sample())
	if c.Len() != 2 {
		t.Fatalf("lru len=%d want 2", c.Len())
	}
}

func TestRedisTier_SharedAcrossInstances(t *testing.T) {
	rc, mr := newRedis(t)
	ctx := context.Background()

	a, _ := New(Config{TTL: time.Hour}, rc, nil)
	b, _ := New(Config{TTL: time.Hour}, rc, nil)

	a.Put(ctx, key("PL-22", 17), sample())
	if !mr.Exists(key("PL-22", 17)) {
		t.Fatalf("coverage not written through to redis")
	}
	if ttl := mr.TTL(key("PL-22", 17)); ttl != time.Hour {
		t.Fatalf("ttl=%v want 1h", ttl)
	}

	got, ok := b.Get(ctx, key("PL-22", 17))
	if !ok {
		t.Fatalf("second instance missed the shared tier")
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("decoded coverage mismatch (-want +got):\n%s", diff)
	}
	if b.Len() != 1 {
		t.Fatalf("redis hit not promoted into lru")
	}
}

func TestRedisTier_CorruptEntryIsMiss(t *testing.T) {
	rc, mr := newRedis(t)
	c, _ := New(Config{}, rc, nil)

	_ = mr.Set(key("PL-22", 14), "{not json")
	if _, ok := c.Get(context.Background(), key("PL-22", 14)); ok {
		t.Fatalf("corrupt entry served")
	}
	_ = mr.Set(key("PL-22", 14), `{"1":[[5,3]]}`)
	if _, ok := c.Get(context.Background(), key("PL-22", 14)); ok {
		t.Fatalf("inverted range served")
	}
}

func TestRedisTier_DownDegradesToMiss(t *testing.T) {
	rc, mr := newRedis(t)
	c, _ := New(Config{OpTimeout: 50 * time.Millisecond}, rc, nil)
	mr.Close()

	ctx := context.Background()
	c.Put(ctx, key("PL-22", 14), sample())
	if _, ok := c.Get(ctx, key("PL-22", 14)); !ok {
		t.Fatalf("lru should still serve when redis is down")
	}
	if _, ok := c.Get(ctx, key("PL-28", 14)); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestInvalidateRegion_BothTiers(t *testing.T) {
	rc, mr := newRedis(t)
	c, _ := New(Config{}, rc, nil)
	ctx := context.Background()

	c.Put(ctx, key("PL-22", 14), sample())
	c.Put(ctx, key("PL-22", 17), sample())
	c.Put(ctx, key("PL-2", 14), sample())
	c.Put(ctx, key("PL-28", 14), sample())

	n, err := c.InvalidateRegion(ctx, "PL-22")
	if err != nil {
		t.Fatalf("InvalidateRegion: %v", err)
	}
	// two lru entries plus the same two in redis
	if n != 4 {
		t.Fatalf("removed=%d want 4", n)
	}
	if _, ok := c.Get(ctx, key("PL-22", 14)); ok {
		t.Fatalf("invalidated entry still served")
	}
	for _, r := range []string{"PL-2", "PL-28"} {
		if !mr.Exists(key(r, 14)) {
			t.Fatalf("%s wrongly invalidated", r)
		}
		if _, ok := c.Get(ctx, key(r, 14)); !ok {
			t.Fatalf("%s missing after unrelated invalidation", r)
		}
	}
}

func TestInvalidateRegion_RedisErrorReturned(t *testing.T) {
	rc, mr := newRedis(t)
	c, _ := New(Config{OpTimeout: 50 * time.Millisecond}, rc, nil)
	mr.Close()
	if _, err := c.InvalidateRegion(context.Background(), "PL-22"); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}

func TestGetOrCompute_SingleComputation(t *testing.T) {
	c, _ := New(Config{}, nil, nil)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (coverage.Coverage, error) {
		calls.Add(1)
		<-release
		return sample(), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(ctx, key("PL-22", 14), compute); err != nil {
				t.Errorf("GetOrCompute: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	n := calls.Load()
	if n < 1 || n > 8 {
		t.Fatalf("calls=%d", n)
	}
	_, hit, err := c.GetOrCompute(ctx, key("PL-22", 14), compute)
	if err != nil || !hit {
		t.Fatalf("expected cached hit, hit=%v err=%v", hit, err)
	}
	if calls.Load() != n {
		t.Fatalf("compute ran on a hit")
	}
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	c, _ := New(Config{}, nil, nil)
	ctx := context.Background()
	boom := errors.New("unpaired")

	if _, _, err := c.GetOrCompute(ctx, key("PL-22", 14), func() (coverage.Coverage, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if c.Len() != 0 {
		t.Fatalf("failed computation was cached")
	}
	got, hit, err := c.GetOrCompute(ctx, key("PL-22", 14), func() (coverage.Coverage, error) {
		return coverage.Coverage{1: {ranges.Range{Start: 1, End: 1}}}, nil
	})
	if err != nil || hit || got.Count() != 1 {
		t.Fatalf("retry: got=%v hit=%v err=%v", got, hit, err)
	}
}
