// Package job runs the coverage → grid → graph pipeline for one region at
// one zoom level, and many such jobs in parallel.
package job

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mohammed-shakir/squadrats-grid/internal/graph"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// Job is the context of one run. Its id counter is private, so concurrent
// jobs never share element ids.
type Job struct {
	Region *region.Region
	Zoom   tile.Zoom

	ids *graph.IDs
}

func New(r *region.Region, z tile.Zoom) *Job {
	return &Job{Region: r, Zoom: z, ids: graph.NewIDs()}
}

// Matrix builds one job per region and zoom, regions outermost.
func Matrix(rs []*region.Region, zooms []tile.Zoom) []*Job {
	out := make([]*Job, 0, len(rs)*len(zooms))
	for _, r := range rs {
		for _, z := range zooms {
			out = append(out, New(r, z))
		}
	}
	return out
}

func (j *Job) String() string { return fmt.Sprintf("%s@%d", j.Region.Code, int(j.Zoom)) }

// IDs is the job's element id counter.
func (j *Job) IDs() *graph.IDs { return j.ids }

// Name is the output file stem: the boundary file stem (or region code)
// followed by the zoom.
func (j *Job) Name() string {
	stem := j.Region.Code
	if j.Region.Path != "" {
		base := filepath.Base(j.Region.Path)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return fmt.Sprintf("%s-%d", stem, int(j.Zoom))
}
