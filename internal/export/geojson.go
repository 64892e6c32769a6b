package export

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/squadrats-grid/internal/coverage"
	"github.com/mohammed-shakir/squadrats-grid/internal/graph"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// GeoJSON renders every way as a LineString feature.
func GeoJSON(g *graph.Graph) (*geojson.FeatureCollection, error) {
	points := make(map[int64]orb.Point, len(g.Nodes))
	for _, n := range g.Nodes {
		points[n.ID] = n.Point
	}

	fc := geojson.NewFeatureCollection()
	for _, w := range g.Ways {
		from, ok := points[w.Nodes[0]]
		if !ok {
			return nil, fmt.Errorf("way %d: missing node %d", w.ID, w.Nodes[0])
		}
		to, ok := points[w.Nodes[1]]
		if !ok {
			return nil, fmt.Errorf("way %d: missing node %d", w.ID, w.Nodes[1])
		}
		f := geojson.NewFeature(orb.LineString{from, to})
		f.ID = w.ID
		for _, t := range w.Tags {
			f.Properties[t.Key] = t.Value
		}
		f.Properties["orientation"] = w.Orientation.String()
		fc.Append(f)
	}
	return fc, nil
}

// CoverageGeoJSON renders one Polygon feature per covered tile.
func CoverageGeoJSON(c coverage.Coverage, z tile.Zoom) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, t := range c.Tiles() {
		f := geojson.NewFeature(t.Bound(z).ToPolygon())
		f.Properties["x"] = t.X
		f.Properties["y"] = t.Y
		f.Properties["zoom"] = int(z)
		fc.Append(f)
	}
	return fc
}

func WriteGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	b, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal geojson: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
