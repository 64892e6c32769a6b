// Package coverage turns contour crossings into the set of covered tiles.
package coverage

import (
	"maps"
	"slices"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// Coverage maps a tile row to its covered columns. Ranges in a row are sorted,
// closed, and neither overlap nor touch.
type Coverage map[int][]ranges.Range

// FromTiles builds a coverage map from individual tiles.
func FromTiles(ts []tile.Tile) Coverage {
	byRow := make(map[int][]int)
	for _, t := range ts {
		byRow[t.Y] = append(byRow[t.Y], t.X)
	}
	c := make(Coverage, len(byRow))
	for y, xs := range byRow {
		c[y] = ranges.Find(xs)
	}
	return c
}

func (c Coverage) Rows() []int {
	return slices.Sorted(maps.Keys(c))
}

func (c Coverage) Count() int {
	n := 0
	for _, rs := range c {
		for _, r := range rs {
			n += r.Len()
		}
	}
	return n
}

func (c Coverage) Contains(t tile.Tile) bool {
	for _, r := range c[t.Y] {
		if r.Contains(t.X) {
			return true
		}
	}
	return false
}

// Tiles lists every covered tile ordered by row, then column.
func (c Coverage) Tiles() []tile.Tile {
	out := make([]tile.Tile, 0, c.Count())
	for _, y := range c.Rows() {
		for _, r := range c[y] {
			for x := r.Start; x <= r.End; x++ {
				out = append(out, tile.Tile{X: x, Y: y})
			}
		}
	}
	return out
}

// Columns transposes the map: column -> covered row ranges. Rows are swept in
// order and only the columns where a run starts or stops are visited.
func (c Coverage) Columns() map[int][]ranges.Range {
	out := make(map[int][]ranges.Range)
	open := func(rs []ranges.Range, y int) {
		for _, r := range rs {
			for x := r.Start; x <= r.End; x++ {
				out[x] = append(out[x], ranges.Range{Start: y, End: y})
			}
		}
	}
	stop := func(rs []ranges.Range, y int) {
		for _, r := range rs {
			for x := r.Start; x <= r.End; x++ {
				out[x][len(out[x])-1].End = y
			}
		}
	}

	var prev []ranges.Range
	prevY := 0
	for i, y := range c.Rows() {
		cur := c[y]
		if i > 0 && y == prevY+1 {
			stop(ranges.Difference(prev, cur), prevY)
			open(ranges.Difference(cur, prev), y)
		} else {
			stop(prev, prevY)
			open(cur, y)
		}
		prev, prevY = cur, y
	}
	stop(prev, prevY)
	return out
}

// Bound is the geographic extent of the covered tiles.
func (c Coverage) Bound(z tile.Zoom) orb.Bound {
	var b orb.Bound
	first := true
	for y, rs := range c {
		for _, r := range rs {
			tb := tile.Tile{X: r.Start, Y: y}.Bound(z).Union(tile.Tile{X: r.End, Y: y}.Bound(z))
			if first {
				b, first = tb, false
				continue
			}
			b = b.Union(tb)
		}
	}
	return b
}
