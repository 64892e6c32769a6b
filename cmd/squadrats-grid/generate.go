package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/job"
	"github.com/mohammed-shakir/squadrats-grid/internal/region"
)

func newGenerateCmd(a *app) *cobra.Command {
	var regions []string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write grid files for regions at the given zooms",
		Example: `  squadrats-grid generate --regions PL-22,PL-28 --zoom 14 --zoom 17
  squadrats-grid generate --regions 'PT-*' --format geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			paths, err := a.generate(ctx, splitList(regions))
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&regions, "regions", nil, "region selectors: PL, PL-22, PL-* (comma separated or repeated)")
	f.IntSliceVar(&a.zooms, "zoom", a.zooms, "zoom levels")
	f.StringVar(&a.cfg.PolyDir, "poly-dir", a.cfg.PolyDir, "directory with boundary files")
	f.StringVar(&a.cfg.OutputDir, "out-dir", a.cfg.OutputDir, "output directory")
	f.StringVar(&a.cfg.OutputFormat, "format", a.cfg.OutputFormat, "output format (osm, geojson)")
	f.IntVar(&a.cfg.JobWorkers, "workers", a.cfg.JobWorkers, "jobs run in parallel")
	_ = cmd.MarkFlagRequired("regions")
	return cmd
}

func (a *app) generate(ctx context.Context, selectors []string) ([]string, error) {
	zooms, err := a.zoomLevels()
	if err != nil {
		return nil, err
	}
	format, err := job.ParseFormat(a.cfg.OutputFormat)
	if err != nil {
		return nil, err
	}
	if !exists(a.cfg.PolyDir) {
		return nil, fmt.Errorf("boundary directory %s does not exist", a.cfg.PolyDir)
	}
	idx, err := region.BuildIndex(a.cfg.PolyDir, a.log)
	if err != nil {
		return nil, err
	}
	rs, err := idx.Select(selectors)
	if err != nil {
		return nil, err
	}

	cache, closer, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var cc job.CoverageCache
	if cache != nil {
		cc = cache
	}
	runner, err := job.NewRunner(a.cfg.Strategy, contour.Options{Holes: a.cfg.HonorHoles}, cc, a.log)
	if err != nil {
		return nil, err
	}

	jobs := job.Matrix(rs, zooms)
	a.log.Info("generating grids", "regions", len(rs), "zooms", len(zooms), "jobs", len(jobs), "workers", a.cfg.JobWorkers)
	written := make([]string, len(jobs))
	err = runner.RunAll(ctx, jobs, a.cfg.JobWorkers, runner.WriteSink(a.cfg.OutputDir, format, written))
	paths := make([]string, 0, len(written))
	for _, p := range written {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, err
}
