// Package graph holds the in-memory model of a chain: its nodes, the edges
// between their ports, and lookup indexes over both.
//
// A Graph is immutable once built and may be shared between goroutines
// without locking. Accessors hand out deep copies.
//
// Ports are identified by node id and handle. Output and input handles live
// in separate namespaces: output "0" and input "0" of the same node are
// different ports.
package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

type portKey struct {
	node string
	port string
}

// Graph is a validated, immutable chain graph.
type Graph struct {
	nodes []Node
	edges []Edge

	nodeIdx  map[string]int
	edgeIdx  map[string]int
	byNode   map[string][]int
	outbound map[portKey][]int // output port -> edges leaving it
	inbound  map[portKey]int   // input port -> the edge feeding it
}

// New validates content and builds its indexes. Violations are reported as
// *MalformedGraphError in document order: node ids first, then edges.
func New(c Content) (*Graph, error) {
	g := &Graph{
		nodes:   make([]Node, len(c.Nodes)),
		edges:   make([]Edge, len(c.Edges)),
		nodeIdx:  make(map[string]int, len(c.Nodes)),
		edgeIdx:  make(map[string]int, len(c.Edges)),
		byNode:   make(map[string][]int, len(c.Nodes)),
		outbound: make(map[portKey][]int, len(c.Edges)),
		inbound:  make(map[portKey]int, len(c.Edges)),
	}

	for i, n := range c.Nodes {
		if n.ID == "" {
			return nil, &MalformedGraphError{Invariant: InvariantNodeID, Msg: fmt.Sprintf("nodes[%d] has no id", i)}
		}
		if _, dup := g.nodeIdx[n.ID]; dup {
			return nil, &MalformedGraphError{Invariant: InvariantDuplicateNode, ID: n.ID}
		}
		g.nodeIdx[n.ID] = i
		n.Inputs = cloneInputs(n.Inputs)
		if n.Inputs == nil {
			n.Inputs = map[string]any{}
		}
		g.nodes[i] = n
	}

	for i, e := range c.Edges {
		if e.ID == "" {
			return nil, &MalformedGraphError{Invariant: InvariantEdgeID, Msg: fmt.Sprintf("edges[%d] has no id", i)}
		}
		if _, dup := g.edgeIdx[e.ID]; dup {
			return nil, &MalformedGraphError{Invariant: InvariantDuplicateEdge, ID: e.ID}
		}
		if _, ok := g.nodeIdx[e.Source]; !ok {
			return nil, &MalformedGraphError{Invariant: InvariantDanglingEdge, ID: e.Source, Msg: fmt.Sprintf("edge %q source does not exist", e.ID)}
		}
		if _, ok := g.nodeIdx[e.Target]; !ok {
			return nil, &MalformedGraphError{Invariant: InvariantDanglingEdge, ID: e.Target, Msg: fmt.Sprintf("edge %q target does not exist", e.ID)}
		}
		in := portKey{e.Target, e.TargetHandle}
		if prev, taken := g.inbound[in]; taken {
			return nil, &MalformedGraphError{
				Invariant: InvariantFanIn,
				ID:        e.ID,
				Msg:       fmt.Sprintf("port %s:%s already fed by edge %q", e.Target, e.TargetHandle, g.edges[prev].ID),
			}
		}
		g.inbound[in] = i
		g.edgeIdx[e.ID] = i
		g.edges[i] = e

		g.byNode[e.Source] = append(g.byNode[e.Source], i)
		if e.Target != e.Source {
			g.byNode[e.Target] = append(g.byNode[e.Target], i)
		}
		out := portKey{e.Source, e.SourceHandle}
		g.outbound[out] = append(g.outbound[out], i)
	}
	return g, nil
}

// FromJSON decodes current-revision content and builds a Graph from it.
// Numeric input values are kept as json.Number.
// Content that does not fit the node/edge shape is reported as an
// InvariantShape violation.
func FromJSON(data []byte) (*Graph, error) {
	var c Content
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&c); err != nil {
		return nil, &MalformedGraphError{Invariant: InvariantShape, Msg: err.Error()}
	}
	return New(c)
}

// Len returns the node and edge counts.
func (g *Graph) Len() (nodes, edges int) {
	return len(g.nodes), len(g.edges)
}

// Nodes returns the nodes in document order.
func (g *Graph) Nodes() []Node {
	return slices.Clone(g.nodes)
}

// Edges returns the edges in document order.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.nodeIdx[id]
	if !ok {
		return Node{}, false
	}
	n := g.nodes[i]
	n.Inputs = cloneInputs(n.Inputs)
	return n, true
}

// Edge looks up an edge by id.
func (g *Graph) Edge(id string) (Edge, bool) {
	i, ok := g.edgeIdx[id]
	if !ok {
		return Edge{}, false
	}
	return g.edges[i], true
}

// EdgesOf returns every edge that starts or ends at the node.
func (g *Graph) EdgesOf(nodeID string) []Edge {
	return g.collect(g.byNode[nodeID])
}

// EdgesFrom returns the edges leaving an output port, in document order.
func (g *Graph) EdgesFrom(nodeID, port string) []Edge {
	return g.collect(g.outbound[portKey{nodeID, port}])
}

// Incoming returns the single edge feeding an input port, if any.
func (g *Graph) Incoming(nodeID, port string) (Edge, bool) {
	i, ok := g.inbound[portKey{nodeID, port}]
	if !ok {
		return Edge{}, false
	}
	return g.edges[i], true
}

// Content returns a copy of the graph in its serializable form.
func (g *Graph) Content() Content {
	c := Content{Nodes: make([]Node, len(g.nodes)), Edges: g.Edges()}
	for i, n := range g.nodes {
		n.Inputs = cloneInputs(n.Inputs)
		c.Nodes[i] = n
	}
	return c
}

func (g *Graph) collect(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

func cloneInputs(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneInputs(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
