// Package ranges holds closed integer intervals and the merge helpers used to
// collapse tile indices into runs.
package ranges

import (
	"fmt"
	"slices"
)

// Range is the closed interval [Start, End].
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start + 1 }

func (r Range) Contains(v int) bool { return v >= r.Start && v <= r.End }

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Find groups the integers into runs of consecutive values. Duplicates are
// allowed; the input is not modified.
func Find(values []int) []Range {
	if len(values) == 0 {
		return nil
	}
	vs := slices.Clone(values)
	slices.Sort(vs)

	out := []Range{{Start: vs[0], End: vs[0]}}
	for _, v := range vs[1:] {
		last := &out[len(out)-1]
		if v <= last.End+1 {
			last.End = max(last.End, v)
			continue
		}
		out = append(out, Range{Start: v, End: v})
	}
	return out
}

// Merge joins ranges that overlap or share an endpoint.
func Merge(rs []Range) []Range {
	return merge(rs, 0)
}

// MergeEndInclusive also joins ranges that are only adjacent, so [1,2] and
// [3,4] become [1,4].
func MergeEndInclusive(rs []Range) []Range {
	return merge(rs, 1)
}

func merge(rs []Range, gap int) []Range {
	if len(rs) == 0 {
		return nil
	}
	sorted := slices.Clone(rs)
	slices.SortFunc(sorted, func(a, b Range) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.End - b.End
	})

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+gap {
			last.End = max(last.End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// MakeEndInclusive turns tile ranges into corner ranges: tiles s..e span the
// corners s..e+1.
func MakeEndInclusive(rs []Range) []Range {
	out := make([]Range, len(rs))
	for i, r := range rs {
		out[i] = Range{Start: r.Start, End: r.End + 1}
	}
	return out
}

// Difference returns the values of a that no range of b contains. Both inputs
// must be sorted and free of overlaps.
func Difference(a, b []Range) []Range {
	var out []Range
	j := 0
	for _, r := range a {
		for j < len(b) && b[j].End < r.Start {
			j++
		}
		start := r.Start
		for k := j; k < len(b) && b[k].Start <= r.End; k++ {
			if b[k].Start > start {
				out = append(out, Range{Start: start, End: b[k].Start - 1})
			}
			start = max(start, b[k].End+1)
		}
		if start <= r.End {
			out = append(out, Range{Start: start, End: r.End})
		}
	}
	return out
}
