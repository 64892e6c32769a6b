// Package grid draws the outline of every covered tile as the smallest set of
// maximal horizontal and vertical segments.
package grid

import (
	"fmt"
	"maps"
	"slices"

	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

type Orientation int8

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// Segment runs along one grid line from From to To, From being the western
// or northern end.
type Segment struct {
	Orientation Orientation
	Zoom        tile.Zoom
	From, To    tile.Corner
}

func (s Segment) String() string {
	return fmt.Sprintf("%s %d,%d-%d,%d@%d", s.Orientation, s.From.X, s.From.Y, s.To.X, s.To.Y, s.Zoom)
}

// Len is the segment length in tile edges.
func (s Segment) Len() int {
	if s.Orientation == Horizontal {
		return s.To.X - s.From.X
	}
	return s.To.Y - s.From.Y
}

// Generate returns horizontal segments row by row, then vertical segments
// column by column.
func Generate(c coverage.Coverage, z tile.Zoom) []Segment {
	if len(c) == 0 {
		return nil
	}
	out := lines(c, func(line int, r ranges.Range) Segment {
		return Segment{Orientation: Horizontal, Zoom: z, From: tile.Corner{X: r.Start, Y: line}, To: tile.Corner{X: r.End, Y: line}}
	})
	out = append(out, lines(c.Columns(), func(line int, r ranges.Range) Segment {
		return Segment{Orientation: Vertical, Zoom: z, From: tile.Corner{X: line, Y: r.Start}, To: tile.Corner{X: line, Y: r.End}}
	})...)
	return out
}

// lines walks tile runs keyed by their position across the fill direction
// (rows for horizontal lines, columns for vertical ones). Line k is the edge
// before run k, line k+1 the edge after it.
func lines(runs map[int][]ranges.Range, mk func(line int, r ranges.Range) Segment) []Segment {
	corners := make(map[int][]ranges.Range, len(runs))
	for k, rs := range runs {
		corners[k] = ranges.MakeEndInclusive(rs)
	}

	var out []Segment
	emit := func(line int, rs []ranges.Range) {
		for _, r := range rs {
			out = append(out, mk(line, r))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(corners)) {
		if _, ok := corners[k-1]; !ok {
			emit(k, corners[k])
		}
		if next, ok := corners[k+1]; ok {
			// shared edge, drawn once for both runs
			emit(k+1, ranges.Merge(append(slices.Clone(corners[k]), next...)))
		} else {
			emit(k+1, corners[k])
		}
	}
	return out
}
