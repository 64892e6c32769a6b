// Package graph turns grid segments into a node/way graph with shared corner
// nodes, ready for serialization.
package graph

import (
	"strconv"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/squadrats-grid/internal/grid"
	"github.com/mohammed-shakir/squadrats-grid/internal/tile"
)

// IDs hands out element ids for one job: -1, -2, ... as used for new OSM
// elements. It is not safe for concurrent use; give every job its own.
type IDs struct {
	last int64
}

func NewIDs() *IDs { return &IDs{} }

func (g *IDs) Next() int64 {
	g.last--
	return g.last
}

// Issued reports how many ids were handed out.
func (g *IDs) Issued() int { return int(-g.last) }

// Tag is one key=value pair on a way.
type Tag struct {
	Key, Value string
}

// Node is a grid corner. Point is the corner's position at the graph's zoom.
type Node struct {
	ID     int64
	Corner tile.Corner
	Point  orb.Point
}

// Way is one grid segment between two nodes, given by id, west to east or
// north to south.
type Way struct {
	ID          int64
	Orientation grid.Orientation
	Nodes       [2]int64
	Tags        []Tag
}

// Graph holds the nodes and ways of one job's grid. Nodes are in the order
// their ids were issued and each corner appears once.
type Graph struct {
	Zoom  tile.Zoom
	Nodes []Node
	Ways  []Way

	byCorner map[tile.Corner]int
}

// GridTags are attached to every way.
func GridTags(z tile.Zoom) []Tag {
	return []Tag{{Key: "name", Value: "grid"}, {Key: "zoom", Value: strconv.Itoa(int(z))}}
}

// Build creates one way per segment. Segment ends sharing a corner share a node.
func Build(segs []grid.Segment, z tile.Zoom, ids *IDs) *Graph {
	g := &Graph{
		Zoom:     z,
		Nodes:    make([]Node, 0, len(segs)),
		Ways:     make([]Way, 0, len(segs)),
		byCorner: make(map[tile.Corner]int, len(segs)),
	}
	tags := GridTags(z)
	for _, s := range segs {
		from := g.node(s.From, ids)
		to := g.node(s.To, ids)
		g.Ways = append(g.Ways, Way{
			ID:          ids.Next(),
			Orientation: s.Orientation,
			Nodes:       [2]int64{from, to},
			Tags:        tags,
		})
	}
	return g
}

func (g *Graph) node(c tile.Corner, ids *IDs) int64 {
	if i, ok := g.byCorner[c]; ok {
		return g.Nodes[i].ID
	}
	n := Node{ID: ids.Next(), Corner: c, Point: c.Point(g.Zoom)}
	g.byCorner[c] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

// NodeAt returns the node placed on corner c.
func (g *Graph) NodeAt(c tile.Corner) (Node, bool) {
	i, ok := g.byCorner[c]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Node looks a node up by id.
func (g *Graph) Node(id int64) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
