package export

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/graph"
	"github.com/mohammed-shakir/squadrats-grid/internal/grid"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

func sampleGraph(t *testing.T) (*graph.Graph, coverage.Coverage) {
	t.Helper()
	z := tile.Squadrats
	c := coverage.FromTiles([]tile.Tile{{X: 9000, Y: 5300}, {X: 9001, Y: 5300}, {X: 9001, Y: 5301}})
	return graph.Build(grid.Generate(c, z), z, graph.NewIDs()), c
}

func TestWriteOSM_Document(t *testing.T) {
	g, _ := sampleGraph(t)

	var buf bytes.Buffer
	if err := WriteOSM(&buf, g); err != nil {
		t.Fatalf("WriteOSM: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "<?xml") {
		t.Fatalf("missing xml header: %q", buf.String()[:40])
	}

	var doc osm.OSM
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal osm: %v", err)
	}
	if doc.Version != "0.6" || doc.Generator != "squadrats-grid" {
		t.Fatalf("header = %q/%q", doc.Version, doc.Generator)
	}
	if len(doc.Nodes) != len(g.Nodes) || len(doc.Ways) != len(g.Ways) {
		t.Fatalf("got %d nodes %d ways, want %d/%d", len(doc.Nodes), len(doc.Ways), len(g.Nodes), len(g.Ways))
	}

	nodes := map[osm.NodeID]*osm.Node{}
	for i, n := range doc.Nodes {
		if i > 0 && doc.Nodes[i-1].ID >= n.ID {
			t.Fatalf("nodes not ordered by id at %d", i)
		}
		nodes[n.ID] = n
	}
	for _, w := range doc.Ways {
		if len(w.Nodes) != 2 {
			t.Fatalf("way %d has %d nodes", w.ID, len(w.Nodes))
		}
		for _, wn := range w.Nodes {
			if _, ok := nodes[wn.ID]; !ok {
				t.Fatalf("way %d references unknown node %d", w.ID, wn.ID)
			}
		}
		if w.Tags.Find("name") != "grid" || w.Tags.Find("zoom") != "14" {
			t.Fatalf("way %d tags = %v", w.ID, w.Tags)
		}
	}
}

func TestOSM_NodeCoordinates(t *testing.T) {
	g, _ := sampleGraph(t)
	doc := OSM(g)
	for _, n := range doc.Nodes {
		gn, ok := g.Node(int64(n.ID))
		if !ok {
			t.Fatalf("node %d not in graph", n.ID)
		}
		if n.Lon != gn.Point.Lon() || n.Lat != gn.Point.Lat() {
			t.Fatalf("node %d at %v,%v want %v", n.ID, n.Lon, n.Lat, gn.Point)
		}
	}
}

func TestGeoJSON_Ways(t *testing.T) {
	g, _ := sampleGraph(t)
	fc, err := GeoJSON(g)
	if err != nil {
		t.Fatalf("GeoJSON: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, fc); err != nil {
		t.Fatalf("WriteGeoJSON: %v", err)
	}
	back, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(back.Features) != len(g.Ways) {
		t.Fatalf("features = %d, want %d", len(back.Features), len(g.Ways))
	}
	for _, f := range back.Features {
		ls, ok := f.Geometry.(orb.LineString)
		if !ok || len(ls) != 2 {
			t.Fatalf("geometry = %#v", f.Geometry)
		}
		o := f.Properties.MustString("orientation")
		if o == "horizontal" && ls[0].Lat() != ls[1].Lat() {
			t.Fatalf("horizontal way is not horizontal: %v", ls)
		}
		if o == "vertical" && ls[0].Lon() != ls[1].Lon() {
			t.Fatalf("vertical way is not vertical: %v", ls)
		}
		if f.Properties.MustString("name") != "grid" {
			t.Fatalf("name = %v", f.Properties["name"])
		}
	}
}

func TestGeoJSON_MissingNode(t *testing.T) {
	g := &graph.Graph{Ways: []graph.Way{{ID: -1, Nodes: [2]int64{-5, -6}}}}
	if _, err := GeoJSON(g); err == nil {
		t.Fatalf("expected error for dangling node reference")
	}
}

func TestCoverageGeoJSON(t *testing.T) {
	_, c := sampleGraph(t)
	fc := CoverageGeoJSON(c, tile.Squadrats)
	if len(fc.Features) != c.Count() {
		t.Fatalf("features = %d, want %d", len(fc.Features), c.Count())
	}
	first := fc.Features[0]
	poly, ok := first.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry = %T", first.Geometry)
	}
	want := tile.Tile{X: 9000, Y: 5300}.Bound(tile.Squadrats)
	if poly.Bound() != want {
		t.Fatalf("first tile bound = %v, want %v", poly.Bound(), want)
	}
	if first.Properties["x"] != 9000 || first.Properties["y"] != 5300 {
		t.Fatalf("properties = %v", first.Properties)
	}
}
