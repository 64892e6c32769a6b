package coverage

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// Strategy computes the tiles covering a region at one zoom.
type Strategy interface {
	Name() string
	Cover(mp orb.MultiPolygon, z tile.Zoom) (Coverage, error)
}

// Contour fills the rows between the polygon's boundary crossings.
type Contour struct {
	Options contour.Options
}

func (Contour) Name() string { return "contour" }

func (s Contour) Cover(mp orb.MultiPolygon, z tile.Zoom) (Coverage, error) {
	if err := z.Validate(); err != nil {
		return nil, err
	}
	bs, err := contour.MultiPolygon(mp, z, s.Options)
	if err != nil {
		return nil, err
	}
	c, err := FromBoundaries(bs, z)
	if err != nil {
		return nil, fmt.Errorf("fill rows: %w", err)
	}
	return c, nil
}

// BoundingBox covers every tile of the polygon's bounding box.
type BoundingBox struct{}

func (BoundingBox) Name() string { return "bbox" }

func (BoundingBox) Cover(mp orb.MultiPolygon, z tile.Zoom) (Coverage, error) {
	if err := z.Validate(); err != nil {
		return nil, err
	}
	if len(mp) == 0 {
		return nil, &contour.MalformedGeometryError{Polygon: -1, Reason: "no polygons"}
	}
	b := mp.Bound()
	nw := tile.At(orb.Point{b.Min.Lon(), b.Max.Lat()}, z)
	se := tile.At(orb.Point{b.Max.Lon(), b.Min.Lat()}, z)

	c := make(Coverage, se.Y-nw.Y+1)
	for y := nw.Y; y <= se.Y; y++ {
		c[y] = []ranges.Range{{Start: nw.X, End: se.X}}
	}
	return c, nil
}
