// Package contour walks polygon rings and records where their edges cross
// the horizontal grid lines of a zoom level.
//
// Every crossing is a Boundary: the west (L) or east (R) edge of the filled
// interior within one tile row. Northward edges produce L crossings and
// southward edges produce R crossings, so rings are oriented before walking:
// exteriors clockwise, holes counter-clockwise.
package contour

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

type Side int8

const (
	West Side = iota // L
	East             // R
)

func (s Side) String() string {
	if s == West {
		return "L"
	}
	return "R"
}

type Boundary struct {
	Row  int
	Side Side
	Lon  float64
}

func (b Boundary) String() string { return fmt.Sprintf("%s@%d:%g", b.Side, b.Row, b.Lon) }

type Options struct {
	// Holes subtracts interior rings from the coverage. Off by default: regions
	// are treated as solid.
	Holes bool
}

type MalformedGeometryError struct {
	Polygon int
	Ring    int
	Reason  string
}

func (e *MalformedGeometryError) Error() string {
	if e.Polygon < 0 {
		return "malformed geometry: " + e.Reason
	}
	return fmt.Sprintf("malformed geometry: polygon %d ring %d: %s", e.Polygon, e.Ring, e.Reason)
}

// LineIntersection returns the longitude at which the line through a and b
// crosses lat. a and b must not share a latitude. At an endpoint's latitude
// the endpoint's longitude is returned unchanged.
func LineIntersection(a, b orb.Point, lat float64) float64 {
	switch lat {
	case a.Lat():
		return a.Lon()
	case b.Lat():
		return b.Lon()
	}
	return (a.Lon()*(b.Lat()-lat) - b.Lon()*(a.Lat()-lat)) / (b.Lat() - a.Lat())
}

// LineGridIntersections returns one boundary per row touched by the edge a→b.
// In rows where the edge runs diagonally the most conservative longitude is
// kept: the eastmost one for R, the westmost one for L.
func LineGridIntersections(a, b orb.Point, z tile.Zoom) []Boundary {
	if a == b {
		return nil
	}
	ya, yb := tile.Y(a.Lat(), z), tile.Y(b.Lat(), z)
	minY, maxY := min(ya, yb), max(ya, yb)

	dLat := b.Lat() - a.Lat()
	switch {
	case dLat < 0:
		// southward: a is in minY, b in maxY
		out := make([]Boundary, 0, maxY-minY+1)
		for y := minY; y <= maxY; y++ {
			lon1 := a.Lon()
			if y != minY {
				lon1 = LineIntersection(a, b, tile.Lat(y, z))
			}
			lon2 := b.Lon()
			if y != maxY {
				lon2 = LineIntersection(a, b, tile.Lat(y+1, z))
			}
			out = append(out, Boundary{Row: y, Side: East, Lon: max(lon1, lon2)})
		}
		return out

	case dLat > 0:
		// northward: b is in minY, a in maxY
		out := make([]Boundary, 0, maxY-minY+1)
		for y := minY; y <= maxY; y++ {
			lon1 := b.Lon()
			if y != minY {
				lon1 = LineIntersection(a, b, tile.Lat(y, z))
			}
			lon2 := a.Lon()
			if y != maxY {
				lon2 = LineIntersection(a, b, tile.Lat(y+1, z))
			}
			out = append(out, Boundary{Row: y, Side: West, Lon: min(lon1, lon2)})
		}
		return out
	}

	// horizontal edge: one L/R pair per tile column it spans
	west, east := min(a.Lon(), b.Lon()), max(a.Lon(), b.Lon())
	minX, maxX := tile.X(west, z), tile.X(east, z)
	out := make([]Boundary, 0, 2*(maxX-minX+1))
	for x := minX; x <= maxX; x++ {
		lon1 := tile.Lon(x, z)
		if x == minX {
			lon1 = west
		}
		lon2 := tile.Lon(x+1, z)
		if x == maxX {
			lon2 = east
		}
		out = append(out,
			Boundary{Row: ya, Side: West, Lon: lon1},
			Boundary{Row: ya, Side: East, Lon: lon2},
		)
	}
	return out
}

// Ring walks an exterior ring. Either winding is accepted.
func Ring(r orb.Ring, z tile.Zoom) ([]Boundary, error) {
	out, err := walk(r, z, orb.CW)
	if err != nil {
		return nil, &MalformedGeometryError{Polygon: -1, Reason: err.Error()}
	}
	return out, nil
}

func Polygon(p orb.Polygon, z tile.Zoom, opts Options) ([]Boundary, error) {
	return polygon(p, -1, z, opts)
}

// MultiPolygon concatenates the crossings of every part.
func MultiPolygon(mp orb.MultiPolygon, z tile.Zoom, opts Options) ([]Boundary, error) {
	if len(mp) == 0 {
		return nil, &MalformedGeometryError{Polygon: -1, Reason: "no polygons"}
	}
	var out []Boundary
	for i, p := range mp {
		bs, err := polygon(p, i, z, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, bs...)
	}
	return out, nil
}

func polygon(p orb.Polygon, idx int, z tile.Zoom, opts Options) ([]Boundary, error) {
	if len(p) == 0 {
		return nil, &MalformedGeometryError{Polygon: max(idx, 0), Ring: 0, Reason: "polygon has no rings"}
	}
	rings := p[:1]
	if opts.Holes {
		rings = p
	}
	var out []Boundary
	for i, r := range rings {
		want := orb.CW
		if i > 0 {
			want = orb.CCW
		}
		bs, err := walk(r, z, want)
		if err != nil {
			return nil, &MalformedGeometryError{Polygon: max(idx, 0), Ring: i, Reason: err.Error()}
		}
		out = append(out, bs...)
	}
	return out, nil
}

// Validate reports the first ring a walk would reject, without walking.
func Validate(mp orb.MultiPolygon, opts Options) error {
	if len(mp) == 0 {
		return &MalformedGeometryError{Polygon: -1, Reason: "no polygons"}
	}
	for i, p := range mp {
		if len(p) == 0 {
			return &MalformedGeometryError{Polygon: i, Ring: 0, Reason: "polygon has no rings"}
		}
		rings := p[:1]
		if opts.Holes {
			rings = p
		}
		for j, r := range rings {
			if err := checkRing(r); err != nil {
				return &MalformedGeometryError{Polygon: i, Ring: j, Reason: err.Error()}
			}
		}
	}
	return nil
}

func checkRing(r orb.Ring) error {
	distinct := make(map[orb.Point]struct{}, len(r))
	for _, p := range r {
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return fmt.Errorf("ring has %d distinct points, need at least 3", len(distinct))
	}
	return nil
}

func walk(r orb.Ring, z tile.Zoom, want orb.Orientation) ([]Boundary, error) {
	if err := checkRing(r); err != nil {
		return nil, err
	}

	ring := slices.Clone(r)
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	if o := ring.Orientation(); o != 0 && o != want {
		slices.Reverse(ring)
	}

	var out []Boundary
	for i := 1; i < len(ring); i++ {
		out = append(out, LineGridIntersections(ring[i-1], ring[i], z)...)
	}
	return out, nil
}
