package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/squadrats-grid/internal/core/config"
	"github.com/mohammed-shakir/squadrats-grid/internal/logger"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// app carries the env config, overridden by flags, into the subcommands.
type app struct {
	cfg   config.Config
	zooms []int
	log   *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: config.FromEnv()}
	for _, z := range a.cfg.Zooms {
		a.zooms = append(a.zooms, int(z))
	}

	root := &cobra.Command{
		Use:           "squadrats-grid",
		Short:         "Tile coverage and grid lines for region boundaries",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			zl := logger.Build(logger.Config{
				Level:     a.cfg.LogLevel,
				Console:   a.cfg.LogConsole,
				Component: cmd.Name(),
			}, cmd.ErrOrStderr())
			a.log = logger.NewSlog(&zl)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.BoolVar(&a.cfg.LogConsole, "log-console", a.cfg.LogConsole, "human readable log output")
	pf.StringVar(&a.cfg.Strategy, "strategy", a.cfg.Strategy, "coverage strategy (contour, clip, bbox)")
	pf.BoolVar(&a.cfg.HonorHoles, "holes", a.cfg.HonorHoles, "exclude polygon holes from coverage")

	root.AddCommand(newGenerateCmd(a), newCoverageCmd(a), newServeCmd(a))
	return root
}

func (a *app) zoomLevels() ([]tile.Zoom, error) {
	if len(a.zooms) == 0 {
		return nil, fmt.Errorf("%w: at least one zoom is required", tile.ErrInvalidZoom)
	}
	out := make([]tile.Zoom, 0, len(a.zooms))
	for _, n := range a.zooms {
		z := tile.Zoom(n)
		if err := z.Validate(); err != nil {
			return nil, err
		}
		out = append(out, z)
	}
	return out, nil
}

func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
