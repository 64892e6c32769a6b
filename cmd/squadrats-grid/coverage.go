package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/squadrats-grid/internal/contour"
	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/export"
	"github.com/mohammed-shakir/squadrats-grid/internal/poly"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

func newCoverageCmd(a *app) *cobra.Command {
	var (
		file    string
		zoom    int
		geoJSON string
	)
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Print the tile coverage of one boundary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			z := tile.Zoom(zoom)
			if err := z.Validate(); err != nil {
				return err
			}
			mp, err := poly.Load(file)
			if err != nil {
				return err
			}
			if err := poly.CheckDomain(mp); err != nil {
				return err
			}
			s, err := coverage.New(a.cfg.Strategy, contour.Options{Holes: a.cfg.HonorHoles}, a.log)
			if err != nil {
				return err
			}
			cov, err := s.Cover(mp, z)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s z%d %s: %d tiles in %d rows\n", file, zoom, s.Name(), cov.Count(), len(cov))
			if len(cov) > 0 {
				b := cov.Bound(z)
				fmt.Fprintf(out, "bounds: %.6f,%.6f,%.6f,%.6f\n", b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())
			}

			if geoJSON == "" {
				return nil
			}
			f, err := os.Create(geoJSON)
			if err != nil {
				return fmt.Errorf("create %s: %w", geoJSON, err)
			}
			if err := export.WriteGeoJSON(f, export.CoverageGeoJSON(cov, z)); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "boundary file (.poly or .geojson)")
	f.IntVar(&zoom, "zoom", int(tile.Squadrats), "zoom level")
	f.StringVar(&geoJSON, "geojson", "", "also write the covered tiles as GeoJSON polygons to this path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
