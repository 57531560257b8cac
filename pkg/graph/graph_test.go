package graph

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, schema string) Node {
	return Node{ID: id, SchemaID: schema, Inputs: map[string]any{}}
}

func edge(id, src, srcPort, dst, dstPort string) Edge {
	return Edge{ID: id, Source: src, SourceHandle: srcPort, Target: dst, TargetHandle: dstPort}
}

func sample() Content {
	return Content{
		Nodes: []Node{
			node("n1", "chainner:pytorch:load_model"),
			node("n2", "chainner:image:load"),
			node("n3", "chainner:pytorch:upscale_image"),
			node("n4", "chainner:image:save"),
			node("n5", "chainner:image:view"),
		},
		Edges: []Edge{
			edge("e1", "n1", "0", "n3", "0"),
			edge("e2", "n2", "0", "n3", "1"),
			edge("e3", "n3", "0", "n4", "0"),
			edge("e4", "n3", "0", "n5", "0"),
		},
	}
}

func TestNew_Valid(t *testing.T) {
	g, err := New(sample())
	require.NoError(t, err)

	nodes, edges := g.Len()
	assert.Equal(t, 5, nodes)
	assert.Equal(t, 4, edges)

	n, ok := g.Node("n3")
	require.True(t, ok)
	assert.Equal(t, "chainner:pytorch:upscale_image", n.SchemaID)

	_, ok = g.Node("missing")
	assert.False(t, ok)

	e, ok := g.Edge("e2")
	require.True(t, ok)
	assert.Equal(t, "n2", e.Source)
}

func TestNew_Empty(t *testing.T) {
	g, err := New(Content{})
	require.NoError(t, err)
	nodes, edges := g.Len()
	assert.Zero(t, nodes)
	assert.Zero(t, edges)
	assert.Nil(t, g.EdgesOf("n1"))
}

func TestEdgeLookups(t *testing.T) {
	g, err := New(sample())
	require.NoError(t, err)

	ids := func(es []Edge) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	assert.Equal(t, []string{"e1", "e2", "e3", "e4"}, ids(g.EdgesOf("n3")))

	// n3 has input 0 (fed by e1) and output 0 (fanning out to e3, e4)
	assert.Equal(t, []string{"e3", "e4"}, ids(g.EdgesFrom("n3", "0")))
	assert.Equal(t, []string{"e1"}, ids(g.EdgesFrom("n1", "0")))
	assert.Empty(t, g.EdgesFrom("n3", "1"), "input handle is not an output port")
	assert.Empty(t, g.EdgesFrom("n3", "9"))

	in, ok := g.Incoming("n3", "0")
	require.True(t, ok)
	assert.Equal(t, "e1", in.ID)
	in, ok = g.Incoming("n3", "1")
	require.True(t, ok)
	assert.Equal(t, "e2", in.ID)

	_, ok = g.Incoming("n1", "0")
	assert.False(t, ok)
}

func TestNew_DanglingEdge(t *testing.T) {
	c := Content{
		Nodes: []Node{node("n1", "a"), node("n2", "b")},
		Edges: []Edge{edge("e1", "n1", "0", "n9", "0")},
	}
	_, err := New(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))

	var me *MalformedGraphError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, InvariantDanglingEdge, me.Invariant)
	assert.Equal(t, "n9", me.ID)
	assert.Contains(t, err.Error(), "n9")
}

func TestNew_DanglingSource(t *testing.T) {
	c := Content{
		Nodes: []Node{node("n1", "a")},
		Edges: []Edge{edge("e1", "ghost", "0", "n1", "0")},
	}
	_, err := New(c)
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "ghost", me.ID)
}

func TestNew_DuplicateNode(t *testing.T) {
	c := Content{Nodes: []Node{node("n1", "a"), node("n1", "b")}}
	_, err := New(c)
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantDuplicateNode, me.Invariant)
	assert.Equal(t, "n1", me.ID)
}

func TestNew_DuplicateEdge(t *testing.T) {
	c := Content{
		Nodes: []Node{node("n1", "a"), node("n2", "b")},
		Edges: []Edge{
			edge("e1", "n1", "0", "n2", "0"),
			edge("e1", "n1", "0", "n2", "1"),
		},
	}
	_, err := New(c)
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantDuplicateEdge, me.Invariant)
	assert.Equal(t, "e1", me.ID)
}

func TestNew_MissingIDs(t *testing.T) {
	_, err := New(Content{Nodes: []Node{node("", "a")}})
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantNodeID, me.Invariant)

	_, err = New(Content{
		Nodes: []Node{node("n1", "a"), node("n2", "a")},
		Edges: []Edge{edge("", "n1", "0", "n2", "0")},
	})
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantEdgeID, me.Invariant)
}

func TestNew_FanInRejected(t *testing.T) {
	c := Content{
		Nodes: []Node{node("n1", "a"), node("n2", "a"), node("n3", "b")},
		Edges: []Edge{
			edge("e1", "n1", "0", "n3", "0"),
			edge("e2", "n2", "0", "n3", "0"),
		},
	}
	_, err := New(c)
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantFanIn, me.Invariant)
	assert.Equal(t, "e2", me.ID)
}

func TestGraphIsImmutable(t *testing.T) {
	c := sample()
	c.Nodes[0].Inputs["0"] = "model.pth"
	g, err := New(c)
	require.NoError(t, err)

	// mutations of the input and of returned values must not leak in
	c.Nodes[0].Inputs["0"] = "other.pth"
	c.Edges[0].Target = "n5"

	nodes := g.Nodes()
	nodes[0].ID = "changed"
	n, _ := g.Node("n1")
	n.Inputs["0"] = "changed.pth"

	again, ok := g.Node("n1")
	require.True(t, ok)
	assert.Equal(t, "model.pth", again.Inputs["0"])
	e, _ := g.Edge("e1")
	assert.Equal(t, "n3", e.Target)
}

func TestFromJSON(t *testing.T) {
	g, err := FromJSON([]byte(`{
		"nodes": [
			{"id": "a", "schemaId": "chainner:image:load", "position": {"x": 10, "y": 20}, "inputData": {"0": "in.png", "1": null}},
			{"id": "b", "schemaId": "chainner:image:save", "position": {"x": 300, "y": 20}, "inputData": {}}
		],
		"edges": [
			{"id": "ab", "source": "a", "sourceHandle": "0", "target": "b", "targetHandle": "0"}
		]
	}`))
	require.NoError(t, err)

	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, Position{X: 10, Y: 20}, a.Position)
	assert.Equal(t, "in.png", a.Inputs["0"])
	v, present := a.Inputs["1"]
	assert.True(t, present)
	assert.Nil(t, v)

	_, err = FromJSON([]byte(`{"nodes": [{"id": 7}], "edges": []}`))
	var me *MalformedGraphError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvariantShape, me.Invariant)
}

func TestGraphIsImmutable_NestedInputs(t *testing.T) {
	c := sample()
	c.Nodes[0].Inputs["0"] = []any{"a.pth", map[string]any{"scale": "4"}}
	g, err := New(c)
	require.NoError(t, err)

	c.Nodes[0].Inputs["0"].([]any)[0] = "caller"

	n, _ := g.Node("n1")
	n.Inputs["0"].([]any)[0] = "mutated"
	n.Inputs["0"].([]any)[1].(map[string]any)["scale"] = "8"

	content := g.Content()
	content.Nodes[0].Inputs["0"].([]any)[0] = "mutated too"

	again, _ := g.Node("n1")
	assert.Equal(t, []any{"a.pth", map[string]any{"scale": "4"}}, again.Inputs["0"])
}

func TestFromJSON_KeepsNumbers(t *testing.T) {
	g, err := FromJSON([]byte(`{
		"nodes": [{"id": "a", "schemaId": "x", "position": {"x": 1.5, "y": 2}, "inputData": {"0": 9007199254740993, "1": 2.50}}],
		"edges": []
	}`))
	require.NoError(t, err)

	a, _ := g.Node("a")
	assert.Equal(t, Position{X: 1.5, Y: 2}, a.Position)
	assert.Equal(t, json.Number("9007199254740993"), a.Inputs["0"])
	assert.Equal(t, json.Number("2.50"), a.Inputs["1"])

	data, err := json.Marshal(g.Content())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"0":9007199254740993`)
}
