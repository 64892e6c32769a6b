package coverage

import (
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// Clip cuts the polygon into one strip per tile row and covers the columns
// spanned by what falls inside each strip. Slower than Contour; useful as a
// reference for it.
type Clip struct {
	Options contour.Options
}

func (Clip) Name() string { return "clip" }

func (s Clip) Cover(mp orb.MultiPolygon, z tile.Zoom) (Coverage, error) {
	if err := z.Validate(); err != nil {
		return nil, err
	}
	if err := contour.Validate(mp, s.Options); err != nil {
		return nil, err
	}
	spans := make(map[int][]ranges.Range)
	for _, p := range mp {
		rings := p[:1]
		if s.Options.Holes {
			rings = p
		}
		clipRows(spans, closed(rings), z)
	}
	c := make(Coverage, len(spans))
	for y, rs := range spans {
		c[y] = ranges.MergeEndInclusive(rs)
	}
	return c, nil
}

// clipRows appends the column spans of every row the rings reach. Within a
// strip the polygon's x-extent is the union of its clipped edges and the
// interior along the strip's north and south lines.
func clipRows(out map[int][]ranges.Range, rings []orb.Ring, z tile.Zoom) {
	last := z.N() - 1
	row := func(lat float64) int { return min(tile.Y(lat, z), last) }

	var (
		edges = make(map[int]orb.MultiLineString)
		// longitudes where the rings cross grid line k, seen from just below
		// (row k) and from just above (row k-1)
		below = make(map[int][]float64)
		above = make(map[int][]float64)
	)
	for _, r := range rings {
		for i := 1; i < len(r); i++ {
			a, b := r[i-1], r[i]
			if a == b {
				continue
			}
			ya, yb := row(a.Lat()), row(b.Lat())
			lo, hi := min(ya, yb), max(ya, yb)
			for y := lo; y <= hi; y++ {
				edges[y] = append(edges[y], orb.LineString{a, b})
			}
			for k := max(lo-1, 0); k <= min(hi+1, last+1); k++ {
				lat := tile.Lat(k, z)
				if (a.Lat() >= lat) != (b.Lat() >= lat) {
					below[k] = append(below[k], contour.LineIntersection(a, b, lat))
				}
				if (a.Lat() > lat) != (b.Lat() > lat) {
					above[k] = append(above[k], contour.LineIntersection(a, b, lat))
				}
			}
		}
	}

	bound := rings[0].Bound()
	col := func(lon float64) int { return min(tile.X(lon, z), last) }
	for y, mls := range edges {
		north, south := tile.Lat(y, z), tile.Lat(y+1, z)
		strip := orb.Bound{
			Min: orb.Point{bound.Min.Lon(), south},
			Max: orb.Point{bound.Max.Lon(), north},
		}
		for _, ls := range clip.MultiLineString(strip, mls) {
			lb := ls.Bound()
			// lying on the south line only: that line belongs to the next row
			if lb.Max.Lat() <= south {
				continue
			}
			out[y] = append(out[y], ranges.Range{Start: col(lb.Min.Lon()), End: col(lb.Max.Lon())})
		}
		for _, lons := range [][]float64{below[y], above[y+1]} {
			for _, iv := range interior(lons) {
				out[y] = append(out[y], ranges.Range{Start: col(iv[0]), End: col(iv[1])})
			}
		}
	}
}

// interior pairs sorted crossings of one grid line into the intervals that
// lie inside the rings under the even-odd rule.
func interior(lons []float64) [][2]float64 {
	if len(lons) < 2 {
		return nil
	}
	sorted := slices.Clone(lons)
	slices.Sort(sorted)
	out := make([][2]float64, 0, len(sorted)/2)
	for i := 0; i+1 < len(sorted); i += 2 {
		out = append(out, [2]float64{sorted[i], sorted[i+1]})
	}
	return out
}

func closed(rings []orb.Ring) []orb.Ring {
	out := make([]orb.Ring, len(rings))
	for i, r := range rings {
		out[i] = r
		if !r.Closed() {
			out[i] = append(slices.Clone(r), r[0])
		}
	}
	return out
}
