package job

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/squadrats-grid/internal/cache/coveragecache"
	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// 11x11 block of z14 tiles, columns 9030..9040 and rows 5230..5240
func block() orb.MultiPolygon {
	z := tile.Squadrats
	w, e := tile.Lon(9030, z)+0.001, tile.Lon(9040, z)+0.001
	n, s := tile.Lat(5230, z)-0.001, tile.Lat(5240, z)-0.001
	return orb.MultiPolygon{{orb.Ring{{w, s}, {w, n}, {e, n}, {e, s}, {w, s}}}}
}

func blockRegion(code string) *region.Region {
	return region.New(region.Subdivision, code, "Block", block())
}

func newRunner(t *testing.T, cache CoverageCache) *Runner {
	t.Helper()
	r, err := NewRunner("contour", contour.Options{}, cache, quiet())
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

func TestJob_Labels(t *testing.T) {
	j := New(blockRegion("PL-22"), tile.Squadrats)
	if j.String() != "PL-22@14" {
		t.Fatalf("String = %q", j.String())
	}
	if j.Name() != "PL-22-14" {
		t.Fatalf("Name = %q", j.Name())
	}
	onDisk := &region.Region{Kind: region.Subdivision, Code: "PL-22", Path: "/poly/pl/PL-22-Pomorskie.poly"}
	if got := New(onDisk, tile.Squadratinhos).Name(); got != "PL-22-Pomorskie-17" {
		t.Fatalf("Name = %q", got)
	}
	m := Matrix([]*region.Region{blockRegion("PL-22"), blockRegion("PL-28")}, []tile.Zoom{14, 17})
	var labels []string
	for _, j := range m {
		labels = append(labels, j.String())
	}
	if strings.Join(labels, " ") != "PL-22@14 PL-22@17 PL-28@14 PL-28@17" {
		t.Fatalf("Matrix = %v", labels)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatOSM, "osm": FormatOSM, "geojson": FormatGeoJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("kml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("ParseFormat(kml) err = %v", err)
	}
}

func TestRun_Block(t *testing.T) {
	r := newRunner(t, nil)
	j := New(blockRegion("PL-22"), tile.Squadrats)

	res, err := r.Run(context.Background(), j)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Coverage.Count() != 121 {
		t.Fatalf("tiles = %d, want 121", res.Coverage.Count())
	}
	// 12 horizontal and 12 vertical lines, no interior breaks
	if len(res.Graph.Ways) != 24 {
		t.Fatalf("ways = %d, want 24", len(res.Graph.Ways))
	}
	if len(res.Graph.Nodes) != 44 {
		t.Fatalf("nodes = %d, want 44", len(res.Graph.Nodes))
	}
	if j.IDs().Issued() != 68 {
		t.Fatalf("ids issued = %d, want 68", j.IDs().Issued())
	}
	if res.CacheHit {
		t.Fatalf("cache hit without a cache")
	}
}

func TestRunAll_OrderAndIndependentIDs(t *testing.T) {
	r := newRunner(t, nil)
	jobs := Matrix([]*region.Region{blockRegion("PL-22"), blockRegion("PL-28"), blockRegion("PL-30")},
		[]tile.Zoom{tile.Squadrats, 15})

	res := make([]*Result, len(jobs))
	err := r.RunAll(context.Background(), jobs, 3, func(_ context.Context, i int, got *Result) error {
		res[i] = got
		return nil
	})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	for i, got := range res {
		if got == nil || got.Job != jobs[i] {
			t.Fatalf("result %d = %v, want %s", i, got, jobs[i])
		}
		first := got.Graph.Nodes[0].ID
		if first != -1 {
			t.Fatalf("%s: first node id = %d, want -1", got.Job, first)
		}
	}
	if res[1].Coverage.Count() <= res[0].Coverage.Count() {
		t.Fatalf("z15 coverage not finer than z14")
	}
}

func TestRunAll_FirstErrorWins(t *testing.T) {
	r := newRunner(t, nil)
	bad := region.New(region.Subdivision, "PL-99", "Broken", orb.MultiPolygon{{orb.Ring{{18, 54}, {18, 54}, {18, 54}}}})
	jobs := []*Job{
		New(blockRegion("PL-22"), tile.Squadrats),
		New(bad, tile.Squadrats),
		New(blockRegion("PL-28"), tile.Squadrats),
	}
	var sunk []string
	err := r.RunAll(context.Background(), jobs, 1, func(_ context.Context, _ int, res *Result) error {
		sunk = append(sunk, res.Job.String())
		return nil
	})
	var mge *contour.MalformedGeometryError
	if !errors.As(err, &mge) {
		t.Fatalf("err = %v, want MalformedGeometryError", err)
	}
	if !strings.Contains(err.Error(), "PL-99@14") {
		t.Fatalf("error lacks job label: %v", err)
	}
	if strings.Join(sunk, " ") != "PL-22@14" {
		t.Fatalf("sunk = %v, want only the job before the failure", sunk)
	}
}

func TestRunAll_WrittenFilesSurviveLaterFailure(t *testing.T) {
	r := newRunner(t, nil)
	bad := region.New(region.Subdivision, "PL-99", "Broken", orb.MultiPolygon{{orb.Ring{{18, 54}, {18, 54}, {18, 54}}}})
	jobs := []*Job{New(blockRegion("PL-22"), tile.Squadrats), New(bad, tile.Squadrats)}
	dir := t.TempDir()
	paths := make([]string, len(jobs))

	if err := r.RunAll(context.Background(), jobs, 1, r.WriteSink(dir, FormatOSM, paths)); err == nil {
		t.Fatalf("expected the broken job to fail")
	}
	want := filepath.Join(dir, "PL-22-14.osm")
	if diff := cmp.Diff([]string{want, ""}, paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("finished output gone: %v", err)
	}
}

func TestRunAll_SinkErrorStops(t *testing.T) {
	r := newRunner(t, nil)
	jobs := []*Job{New(blockRegion("PL-22"), tile.Squadrats), New(blockRegion("PL-28"), tile.Squadrats)}
	boom := errors.New("disk full")
	calls := 0
	err := r.RunAll(context.Background(), jobs, 1, func(context.Context, int, *Result) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want sink error", err)
	}
	if calls != 1 {
		t.Fatalf("sink called %d times after failing", calls)
	}
}

func TestRun_TileBudget(t *testing.T) {
	r := newRunner(t, nil)
	r.MaxTiles = 120
	_, err := r.Run(context.Background(), New(blockRegion("PL-22"), tile.Squadrats))
	var tooMany *TooManyTilesError
	if !errors.As(err, &tooMany) {
		t.Fatalf("err = %v, want TooManyTilesError", err)
	}
	if tooMany.Tiles != 121 || tooMany.Max != 120 {
		t.Fatalf("budget error = %+v", *tooMany)
	}

	r.MaxTiles = 121
	if _, err := r.Run(context.Background(), New(blockRegion("PL-22"), tile.Squadrats)); err != nil {
		t.Fatalf("Run at the budget: %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	r := newRunner(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, New(blockRegion("PL-22"), tile.Squadrats)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRun_InvalidZoom(t *testing.T) {
	r := newRunner(t, nil)
	if _, err := r.Run(context.Background(), New(blockRegion("PL-22"), 25)); err == nil {
		t.Fatalf("expected error for zoom 25")
	}
}

type countingCache struct {
	inner *coveragecache.Cache
	calls atomic.Int32
}

func (c *countingCache) GetOrCompute(ctx context.Context, key string, compute func() (coverage.Coverage, error)) (coverage.Coverage, bool, error) {
	return c.inner.GetOrCompute(ctx, key, func() (coverage.Coverage, error) {
		c.calls.Add(1)
		return compute()
	})
}

func TestRun_CacheReusesCoverage(t *testing.T) {
	inner, err := coveragecache.New(coveragecache.Config{}, nil, quiet())
	if err != nil {
		t.Fatalf("coveragecache: %v", err)
	}
	cc := &countingCache{inner: inner}
	r := newRunner(t, cc)
	ctx := context.Background()

	a, err := r.Run(ctx, New(blockRegion("PL-22"), tile.Squadrats))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	b, err := r.Run(ctx, New(blockRegion("PL-22"), tile.Squadrats))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if cc.calls.Load() != 1 || a.CacheHit || !b.CacheHit {
		t.Fatalf("computations=%d hits=%v/%v", cc.calls.Load(), a.CacheHit, b.CacheHit)
	}
	if len(a.Graph.Ways) != len(b.Graph.Ways) {
		t.Fatalf("cached coverage built a different grid")
	}

	if _, err := r.Run(ctx, New(blockRegion("PL-22"), 15)); err != nil {
		t.Fatalf("Run z15: %v", err)
	}
	if cc.calls.Load() != 2 {
		t.Fatalf("other zoom served from cache")
	}
}

func TestWrite_Formats(t *testing.T) {
	r := newRunner(t, nil)
	ctx := context.Background()
	res, err := r.Run(ctx, New(blockRegion("PL-22"), tile.Squadrats))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "out")

	p, err := r.Write(ctx, res, dir, FormatOSM)
	if err != nil {
		t.Fatalf("Write osm: %v", err)
	}
	if filepath.Base(p) != "PL-22-14.osm" {
		t.Fatalf("path = %s", p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte(xml.Header)) {
		t.Fatalf("missing xml header")
	}
	var doc osm.OSM
	if err := xml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("unmarshal osm: %v", err)
	}
	if len(doc.Ways) != 24 || len(doc.Nodes) != 44 {
		t.Fatalf("osm has %d ways, %d nodes", len(doc.Ways), len(doc.Nodes))
	}

	p, err = r.Write(ctx, res, dir, FormatGeoJSON)
	if err != nil {
		t.Fatalf("Write geojson: %v", err)
	}
	b, _ = os.ReadFile(p)
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		t.Fatalf("unmarshal geojson: %v", err)
	}
	if len(fc.Features) != 24 {
		t.Fatalf("geojson has %d features", len(fc.Features))
	}

	if _, err := r.Write(ctx, res, dir, "kml"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("Write kml err = %v", err)
	}
}
