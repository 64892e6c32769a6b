// Package router holds the HTTP handlers for grid and coverage requests.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/export"
	"github.com/mohammed-shakir/squadrats-grid/internal/job"
	"github.com/mohammed-shakir/squadrats-grid/internal/poly"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

const (
	maxBodyBytes        = 16 << 20
	maxGeoJSONTiles     = 200_000
	contentTypeOSM      = "application/vnd.openstreetmap.data+xml"
	contentTypeGeoJSON  = "application/geo+json"
	contentTypeJSON     = "application/json"
	headerTiles         = "X-Tiles"
	headerCache         = "X-Cache"
	defaultCoverageZoom = tile.Squadrats
)

// RegionLookup resolves region codes; *region.Index satisfies it.
type RegionLookup interface {
	Lookup(code string) ([]*region.Region, error)
}

// JobRunner runs one grid job; *job.Runner satisfies it.
type JobRunner interface {
	Run(ctx context.Context, j *job.Job) (*job.Result, error)
}

type GridRequest struct {
	Region string
	Zoom   tile.Zoom
	Format job.Format
}

type CoverageRequest struct {
	Zoom     tile.Zoom
	Strategy string
	Holes    bool
	Format   string
}

// HandleGrid serves GET /grid?region=PL-22&zoom=14&format=osm|geojson.
func HandleGrid(logger *slog.Logger, regions RegionLookup, runner JobRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ParseGridRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		rs, err := regions.Lookup(req.Region)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}
		reg, err := combine(rs)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}

		res, err := runner.Run(r.Context(), job.New(reg, req.Zoom))
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}

		w.Header().Set(headerTiles, strconv.Itoa(res.Coverage.Count()))
		w.Header().Set(headerCache, cacheHeader(res.CacheHit))
		switch req.Format {
		case job.FormatGeoJSON:
			w.Header().Set("Content-Type", contentTypeGeoJSON)
		default:
			w.Header().Set("Content-Type", contentTypeOSM)
		}
		if err := job.Encode(w, res, req.Format); err != nil {
			logger.ErrorContext(r.Context(), "write grid response", "err", err)
		}
	}
}

// HandleCoverage serves POST /coverage with a GeoJSON boundary as body.
func HandleCoverage(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := ParseCoverageRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		mp, err := poly.ParseGeoJSON(body)
		if err != nil {
			http.Error(w, "invalid boundary: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := poly.CheckDomain(mp); err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}

		s, err := coverage.New(req.Strategy, contour.Options{Holes: req.Holes}, logger)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}
		cov, err := s.Cover(mp, req.Zoom)
		if err != nil {
			writeError(r.Context(), logger, w, err)
			return
		}

		w.Header().Set(headerTiles, strconv.Itoa(cov.Count()))
		if req.Format == "geojson" {
			if cov.Count() > maxGeoJSONTiles {
				http.Error(w, fmt.Sprintf("%d tiles exceed the geojson limit of %d", cov.Count(), maxGeoJSONTiles),
					http.StatusUnprocessableEntity)
				return
			}
			w.Header().Set("Content-Type", contentTypeGeoJSON)
			if err := export.WriteGeoJSON(w, export.CoverageGeoJSON(cov, req.Zoom)); err != nil {
				logger.ErrorContext(r.Context(), "write coverage response", "err", err)
			}
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		if err := json.NewEncoder(w).Encode(summarize(cov, req.Zoom, s.Name())); err != nil {
			logger.ErrorContext(r.Context(), "write coverage response", "err", err)
		}
	}
}

func ParseGridRequest(r *http.Request) (GridRequest, error) {
	q := r.URL.Query()
	code := strings.ToUpper(strings.TrimSpace(q.Get("region")))
	if code == "" {
		return GridRequest{}, errors.New("missing required parameter: region")
	}
	if !region.ValidCode(code) {
		return GridRequest{}, fmt.Errorf("invalid region code %q", code)
	}
	raw := strings.TrimSpace(q.Get("zoom"))
	if raw == "" {
		return GridRequest{}, errors.New("missing required parameter: zoom")
	}
	z, err := tile.ParseZoom(raw)
	if err != nil {
		return GridRequest{}, fmt.Errorf("invalid zoom: %w", err)
	}
	f, err := job.ParseFormat(strings.ToLower(strings.TrimSpace(q.Get("format"))))
	if err != nil {
		return GridRequest{}, err
	}
	return GridRequest{Region: code, Zoom: z, Format: f}, nil
}

func ParseCoverageRequest(r *http.Request) (CoverageRequest, error) {
	q := r.URL.Query()
	req := CoverageRequest{
		Zoom:     defaultCoverageZoom,
		Strategy: strings.TrimSpace(q.Get("strategy")),
		Format:   strings.ToLower(strings.TrimSpace(q.Get("format"))),
	}
	if raw := strings.TrimSpace(q.Get("zoom")); raw != "" {
		z, err := tile.ParseZoom(raw)
		if err != nil {
			return CoverageRequest{}, fmt.Errorf("invalid zoom: %w", err)
		}
		req.Zoom = z
	}
	if req.Strategy == "" {
		req.Strategy = coverage.DefaultStrategy
	}
	switch req.Format {
	case "":
		req.Format = "json"
	case "json", "geojson":
	default:
		return CoverageRequest{}, fmt.Errorf("unknown format %q (want json or geojson)", req.Format)
	}
	if raw := strings.TrimSpace(q.Get("holes")); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return CoverageRequest{}, fmt.Errorf("invalid holes: %w", err)
		}
		req.Holes = b
	}
	return req, nil
}

// combine merges the files of a subdivision spread over several boundary
// files into one in-memory region.
func combine(rs []*region.Region) (*region.Region, error) {
	if len(rs) == 1 {
		return rs[0], nil
	}
	var geom orb.MultiPolygon
	for _, r := range rs {
		mp, err := r.Geometry()
		if err != nil {
			return nil, err
		}
		geom = append(geom, mp...)
	}
	first := rs[0]
	return region.New(first.Kind, first.Code, first.Name, geom), nil
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

type rowSummary struct {
	Y      int      `json:"y"`
	Ranges [][2]int `json:"ranges"`
}

type coverageSummary struct {
	Zoom     int          `json:"zoom"`
	Strategy string       `json:"strategy"`
	Tiles    int          `json:"tiles"`
	Bounds   [4]float64   `json:"bounds"`
	Rows     []rowSummary `json:"rows"`
}

func summarize(cov coverage.Coverage, z tile.Zoom, strategy string) coverageSummary {
	out := coverageSummary{Zoom: int(z), Strategy: strategy, Tiles: cov.Count(), Rows: []rowSummary{}}
	if len(cov) > 0 {
		b := cov.Bound(z)
		out.Bounds = [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	for _, y := range cov.Rows() {
		rs := make([][2]int, len(cov[y]))
		for i, r := range cov[y] {
			rs[i] = [2]int{r.Start, r.End}
		}
		out.Rows = append(out.Rows, rowSummary{Y: y, Ranges: rs})
	}
	return out
}
