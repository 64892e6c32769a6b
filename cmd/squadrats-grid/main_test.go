package main

import (
	"bytes"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/squadrats-grid/internal/region"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// writes an 11x11 block of z14 tiles as PL-22-Block.geojson
func polyDir(t *testing.T) string {
	t.Helper()
	z := tile.Squadrats
	w, e := tile.Lon(9030, z)+0.001, tile.Lon(9040, z)+0.001
	n, s := tile.Lat(5230, z)-0.001, tile.Lat(5240, z)-0.001
	mp := orb.MultiPolygon{{orb.Ring{{w, s}, {w, n}, {e, n}, {e, s}, {w, s}}}}
	b, err := geojson.NewFeature(mp).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "PL-22-Block.geojson"), b, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestGenerate_WritesOSM(t *testing.T) {
	in, out := polyDir(t), t.TempDir()
	stdout, err := execute(t, "generate", "--regions", "PL-22", "--zoom", "14", "--poly-dir", in, "--out-dir", out)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := filepath.Join(out, "PL-22-Block-14.osm")
	if strings.TrimSpace(stdout) != want {
		t.Fatalf("stdout = %q, want %q", stdout, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc osm.OSM
	if err := xml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Ways) != 24 {
		t.Fatalf("ways = %d, want 24", len(doc.Ways))
	}
}

func TestGenerate_ZoomMatrixGeoJSON(t *testing.T) {
	in, out := polyDir(t), t.TempDir()
	stdout, err := execute(t, "generate", "--regions", "PL-*", "--zoom", "14,15",
		"--poly-dir", in, "--out-dir", out, "--format", "geojson", "--workers", "2")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	lines := strings.Fields(stdout)
	if len(lines) != 2 || !strings.HasSuffix(lines[0], "PL-22-Block-14.geojson") || !strings.HasSuffix(lines[1], "PL-22-Block-15.geojson") {
		t.Fatalf("written = %v", lines)
	}
}

func TestGenerate_Errors(t *testing.T) {
	in := polyDir(t)
	if _, err := execute(t, "generate", "--regions", "DE-BY", "--poly-dir", in, "--out-dir", t.TempDir()); !errors.Is(err, region.ErrNotFound) {
		t.Fatalf("unknown region error = %v", err)
	}
	if _, err := execute(t, "generate", "--regions", "PL-22", "--zoom", "40", "--poly-dir", in); !errors.Is(err, tile.ErrInvalidZoom) {
		t.Fatalf("bad zoom error = %v", err)
	}
	if _, err := execute(t, "generate", "--regions", "PL-22", "--format", "kml", "--poly-dir", in); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := execute(t, "generate", "--poly-dir", in); err == nil {
		t.Fatalf("expected missing --regions error")
	}
	if _, err := execute(t, "generate", "--regions", "PL", "--poly-dir", filepath.Join(in, "missing")); err == nil {
		t.Fatalf("expected missing directory error")
	}
}

func TestCoverage_PrintsCounts(t *testing.T) {
	in := polyDir(t)
	file := filepath.Join(in, "PL-22-Block.geojson")
	tiles := filepath.Join(t.TempDir(), "tiles.geojson")
	stdout, err := execute(t, "coverage", "--file", file, "--zoom", "14", "--geojson", tiles)
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if !strings.Contains(stdout, "121 tiles in 11 rows") {
		t.Fatalf("stdout = %q", stdout)
	}
	if _, err := os.Stat(tiles); err != nil {
		t.Fatalf("geojson not written: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"PL-22, PL-28", "", "PT-*"})
	if strings.Join(got, "|") != "PL-22|PL-28|PT-*" {
		t.Fatalf("splitList = %v", got)
	}
}
