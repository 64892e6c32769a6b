package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/squadrats-grid/internal/cache/keys"
	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/core/observability"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/export"
	"github.com/mohammed-shakir/squadrats-grid/internal/graph"
	"github.com/mohammed-shakir/squadrats-grid/internal/grid"
	mylog "github.com/mohammed-shakir/squadrats-grid/internal/logger"
)

type Format string

const (
	FormatOSM     Format = "osm"
	FormatGeoJSON Format = "geojson"
)

var ErrUnknownFormat = errors.New("unknown output format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatOSM, FormatGeoJSON:
		return f, nil
	case "":
		return FormatOSM, nil
	default:
		return "", fmt.Errorf("%w %q (want osm or geojson)", ErrUnknownFormat, s)
	}
}

// CoverageCache memoizes coverages; *coveragecache.Cache satisfies it.
type CoverageCache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (coverage.Coverage, error)) (coverage.Coverage, bool, error)
}

// TooManyTilesError rejects a coverage above the runner's tile budget before
// any grid is built from it.
type TooManyTilesError struct {
	Tiles int
	Max   int
}

func (e *TooManyTilesError) Error() string {
	return fmt.Sprintf("coverage has %d tiles, limit is %d", e.Tiles, e.Max)
}

type Runner struct {
	Strategy coverage.Strategy
	Options  contour.Options
	Cache    CoverageCache
	Logger   *slog.Logger
	// MaxTiles caps the coverage a job may turn into a grid. Zero means no cap.
	MaxTiles int
}

// NewRunner resolves the strategy by name; cache may be nil.
func NewRunner(strategy string, opts contour.Options, cache CoverageCache, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := coverage.New(strategy, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{Strategy: s, Options: opts, Cache: cache, Logger: logger}, nil
}

type Result struct {
	Job      *Job
	Coverage coverage.Coverage
	Segments []grid.Segment
	Graph    *graph.Graph
	CacheHit bool
	Elapsed  time.Duration
}

// Run executes one job. Engine errors (malformed geometry, unpaired
// boundaries) are returned as is and wrapped with the job label.
func (r *Runner) Run(ctx context.Context, j *Job) (*Result, error) {
	start := time.Now()
	ctx = mylog.WithJob(ctx, j.String())

	res, err := r.run(ctx, j)
	elapsed := time.Since(start)
	observability.ObserveJob(r.Strategy.Name(), int(j.Zoom), err, elapsed.Seconds())
	if err != nil {
		r.Logger.ErrorContext(ctx, "job failed", "err", err, "took", elapsed)
		return nil, fmt.Errorf("job %s: %w", j, err)
	}
	res.Elapsed = elapsed
	r.Logger.InfoContext(ctx, "job done",
		"region", j.Region.DisplayName(),
		"tiles", res.Coverage.Count(),
		"rows", len(res.Coverage),
		"nodes", len(res.Graph.Nodes),
		"ways", len(res.Graph.Ways),
		"cache_hit", res.CacheHit,
		"took", elapsed)
	return res, nil
}

func (r *Runner) run(ctx context.Context, j *Job) (*Result, error) {
	if err := j.Zoom.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	geom, err := j.Region.Geometry()
	if err != nil {
		return nil, err
	}

	var (
		cov coverage.Coverage
		hit bool
	)
	err = r.stage(ctx, "cover", func() error {
		compute := func() (coverage.Coverage, error) { return r.Strategy.Cover(geom, j.Zoom) }
		if r.Cache == nil {
			cov, err = compute()
			return err
		}
		key := keys.Key(j.Region.Code, r.Strategy.Name(), j.Zoom, r.Options.Holes, keys.GeometryHash(geom))
		cov, hit, err = r.Cache.GetOrCompute(ctx, key, compute)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := cov.Count()
	if r.MaxTiles > 0 && n > r.MaxTiles {
		return nil, &TooManyTilesError{Tiles: n, Max: r.MaxTiles}
	}
	observability.AddTiles(int(j.Zoom), n)

	var segs []grid.Segment
	_ = r.stage(ctx, "grid", func() error {
		segs = grid.Generate(cov, j.Zoom)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var g *graph.Graph
	_ = r.stage(ctx, "graph", func() error {
		g = graph.Build(segs, j.Zoom, j.ids)
		return nil
	})
	observability.AddWays(int(j.Zoom), len(g.Ways))

	return &Result{Job: j, Coverage: cov, Segments: segs, Graph: g, CacheHit: hit}, nil
}

func (r *Runner) stage(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	observability.ObserveStage(name, d.Seconds())
	r.Logger.DebugContext(ctx, "stage done", "stage", name, "took", d)
	return err
}

// Sink receives a finished result on the worker that produced it. i is the
// job's index in the slice given to RunAll. The result is dropped once the sink
// returns.
type Sink func(ctx context.Context, i int, res *Result) error

// RunAll runs independent jobs on at most workers goroutines and hands every
// result to sink as soon as it is ready. The first failure, of a job or of the
// sink, cancels the jobs not yet finished; results already sunk are kept.
func (r *Runner) RunAll(ctx context.Context, jobs []*Job, workers int, sink Sink) error {
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, j := range jobs {
		g.Go(func() error {
			res, err := r.Run(gctx, j)
			if err != nil {
				return err
			}
			return sink(gctx, i, res)
		})
	}
	return g.Wait()
}

// WriteSink writes each result into dir and records its path at the job's
// index in paths, which must be as long as the job slice.
func (r *Runner) WriteSink(dir string, format Format, paths []string) Sink {
	return func(ctx context.Context, i int, res *Result) error {
		p, err := r.Write(ctx, res, dir, format)
		if err != nil {
			return err
		}
		paths[i] = p
		return nil
	}
}

// Write serializes res into dir and returns the file path.
func (r *Runner) Write(ctx context.Context, res *Result, dir string, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, res.Job.Name()+"."+string(format))

	err := r.stage(mylog.WithJob(ctx, res.Job.String()), "write", func() error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := Encode(f, res, format); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	r.Logger.InfoContext(ctx, "output written", "job", res.Job.String(), "path", path)
	return path, nil
}

// Encode writes the graph of res in format.
func Encode(w io.Writer, res *Result, format Format) error {
	switch format {
	case FormatOSM:
		return export.WriteOSM(w, res.Graph)
	case FormatGeoJSON:
		fc, err := export.GeoJSON(res.Graph)
		if err != nil {
			return err
		}
		return export.WriteGeoJSON(w, fc)
	default:
		return fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}
