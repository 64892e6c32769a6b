// Package export serializes grid graphs and coverage maps.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/squadrats-grid/internal/graph"
)

const (
	osmVersion = "0.6"
	generator  = "squadrats-grid"
)

// OSM converts the graph into an OSM document, nodes first, both element
// lists ordered by id.
func OSM(g *graph.Graph) *osm.OSM {
	doc := &osm.OSM{Version: osmVersion, Generator: generator}

	nodes := slices.Clone(g.Nodes)
	slices.SortFunc(nodes, func(a, b graph.Node) int { return compareID(a.ID, b.ID) })
	for _, n := range nodes {
		doc.Nodes = append(doc.Nodes, &osm.Node{
			ID:      osm.NodeID(n.ID),
			Lat:     n.Point.Lat(),
			Lon:     n.Point.Lon(),
			Visible: true,
			Version: 1,
		})
	}

	ways := slices.Clone(g.Ways)
	slices.SortFunc(ways, func(a, b graph.Way) int { return compareID(a.ID, b.ID) })
	for _, w := range ways {
		ow := &osm.Way{
			ID:      osm.WayID(w.ID),
			Visible: true,
			Version: 1,
			Nodes:   osm.WayNodes{{ID: osm.NodeID(w.Nodes[0])}, {ID: osm.NodeID(w.Nodes[1])}},
		}
		for _, t := range w.Tags {
			ow.Tags = append(ow.Tags, osm.Tag{Key: t.Key, Value: t.Value})
		}
		doc.Ways = append(doc.Ways, ow)
	}
	return doc
}

func WriteOSM(w io.Writer, g *graph.Graph) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(OSM(g)); err != nil {
		return fmt.Errorf("encode osm: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write osm: %w", err)
	}
	return nil
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
