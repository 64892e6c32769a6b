package coverage

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/ranges"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

type UnpairedBoundaryError struct {
	Row      int
	Boundary contour.Boundary
	Reason   string
}

func (e *UnpairedBoundaryError) Error() string {
	return fmt.Sprintf("unpaired boundary in row %d (%s): %s", e.Row, e.Boundary, e.Reason)
}

// FromBoundaries groups crossings by row and fills every row.
func FromBoundaries(bs []contour.Boundary, z tile.Zoom) (Coverage, error) {
	byRow := make(map[int][]contour.Boundary)
	for _, b := range bs {
		byRow[b.Row] = append(byRow[b.Row], b)
	}
	c := make(Coverage, len(byRow))
	for row, rbs := range byRow {
		rs, err := FillRow(row, rbs, z)
		if err != nil {
			return nil, err
		}
		if len(rs) > 0 {
			c[row] = rs
		}
	}
	return c, nil
}

// FillRow sweeps one row's crossings west to east and returns the covered
// column ranges. Crossings at the same longitude are applied together: while
// a west/east pair is pending the group's R crossings go first, so the span
// runs up to the shared longitude before the next one starts. Otherwise L goes
// first. The input slice is not modified.
func FillRow(row int, bs []contour.Boundary, z tile.Zoom) ([]ranges.Range, error) {
	if len(bs) == 0 {
		return nil, nil
	}
	sorted := slices.Clone(bs)
	slices.SortStableFunc(sorted, func(a, b contour.Boundary) int {
		if c := cmp.Compare(a.Lon, b.Lon); c != 0 {
			return c
		}
		return cmp.Compare(a.Side, b.Side)
	})
	for _, b := range sorted {
		if b.Row != row {
			return nil, &UnpairedBoundaryError{Row: row, Boundary: b, Reason: "boundary belongs to another row"}
		}
	}

	var (
		out        []ranges.Range
		west, east *contour.Boundary
	)
	apply := func(b *contour.Boundary) error {
		switch b.Side {
		case contour.West:
			if west == nil {
				west = b
			} else if east != nil {
				out = append(out, span(*west, *east, z))
				west, east = b, nil
			}
		case contour.East:
			if west == nil {
				return &UnpairedBoundaryError{Row: row, Boundary: *b, Reason: "east boundary without a preceding west boundary"}
			}
			east = b
		}
		return nil
	}
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j].Lon == sorted[i].Lon {
			j++
		}
		order := []contour.Side{contour.West, contour.East}
		if west != nil && east != nil {
			// close the open span at this longitude, then open the next one
			// and close it here too in case no R follows
			order = []contour.Side{contour.East, contour.West, contour.East}
		}
		for _, side := range order {
			for k := i; k < j; k++ {
				if sorted[k].Side != side {
					continue
				}
				if err := apply(&sorted[k]); err != nil {
					return nil, err
				}
			}
		}
		i = j
	}
	if east == nil {
		return nil, &UnpairedBoundaryError{Row: row, Boundary: *west, Reason: "west boundary never closed"}
	}
	out = append(out, span(*west, *east, z))
	return ranges.MergeEndInclusive(out), nil
}

// span converts a closed pair into columns. lon 180 is the east edge of the
// last column, not a column of its own.
func span(west, east contour.Boundary, z tile.Zoom) ranges.Range {
	last := z.N() - 1
	return ranges.Range{
		Start: min(tile.X(west.Lon, z), last),
		End:   min(tile.X(east.Lon, z), last),
	}
}
