package migration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/graph"
)

const legacyJSON = `{
	"version": "0.5.0",
	"content": {
		"nodes": [
			{"id": "a", "type": "regularNode", "width": 240, "selected": true,
			 "position": {"x": 10, "y": 20},
			 "data": {"id": "a", "schemaId": "chainner:image:load", "inputData": ["in.png"]}},
			{"id": "b", "type": "regularNode", "position": {"x": 300, "y": 20},
			 "data": {"id": "b", "schemaId": "chainner:pytorch:upscale", "inputData": [null, null]}},
			{"id": "c", "type": "regularNode",
			 "data": {"id": "c", "schemaId": "chainner:image:save"}}
		],
		"edges": [
			{"source": "a", "sourceHandle": "a-0", "target": "b", "targetHandle": "b-1", "animated": false},
			{"id": "keep", "source": "b", "sourceHandle": "b-0", "target": "c", "targetHandle": "c-0", "type": "main"}
		]
	}
}`

func legacyDoc(t *testing.T) *chain.Document {
	t.Helper()
	doc, err := chain.Decode([]byte(legacyJSON))
	require.NoError(t, err)
	return doc
}

func toGraph(t *testing.T, doc *chain.Document) *graph.Graph {
	t.Helper()
	data, err := json.Marshal(doc.Content)
	require.NoError(t, err)
	g, err := graph.FromJSON(data)
	require.NoError(t, err)
	return g
}

func TestHistory_LegacyToCurrent(t *testing.T) {
	out, err := Default().Migrate(legacyDoc(t))
	require.NoError(t, err)
	assert.Equal(t, Default().Current(), out.Revision())

	g := toGraph(t, out)
	nodes, edges := g.Len()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 2, edges)

	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, "chainner:image:load", a.SchemaID)
	assert.Equal(t, graph.Position{X: 10, Y: 20}, a.Position)
	assert.Equal(t, map[string]any{"0": "in.png"}, a.Inputs)

	b, _ := g.Node("b")
	assert.Equal(t, "chainner:pytorch:upscale_image", b.SchemaID, "legacy id renamed")
	assert.Equal(t, map[string]any{"0": nil, "1": nil}, b.Inputs)

	c, _ := g.Node("c")
	assert.Equal(t, graph.Position{}, c.Position)
	assert.Empty(t, c.Inputs)

	in, ok := g.Incoming("b", "1")
	require.True(t, ok)
	assert.Equal(t, "a", in.Source)
	assert.Equal(t, "0", in.SourceHandle)
	assert.NotEmpty(t, in.ID)

	_, ok = g.Edge("keep")
	assert.True(t, ok, "existing edge ids are preserved")

	// canvas-only fields are gone
	node0 := out.Content["nodes"].([]any)[0].(map[string]any)
	assert.NotContains(t, node0, "width")
	assert.NotContains(t, node0, "data")
	edge0 := out.Content["edges"].([]any)[0].(map[string]any)
	assert.NotContains(t, edge0, "animated")
}

func TestAddEdgeIDs_Stable(t *testing.T) {
	run := func() string {
		c := chain.CloneObject(legacyDoc(t).Content)
		out, err := addEdgeIDs(c)
		require.NoError(t, err)
		return out["edges"].([]any)[0].(map[string]any)["id"].(string)
	}
	first := run()
	assert.Len(t, first, 36)
	assert.Equal(t, first, run())
}

func TestAddEdgeIDs_RejectsNonObject(t *testing.T) {
	_, err := addEdgeIDs(map[string]any{"edges": []any{"nope"}})
	var ee *ElementError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "edges[0]", ee.Element)
}

func TestInputDataToMap(t *testing.T) {
	c := map[string]any{"nodes": []any{
		map[string]any{"id": "x", "data": map[string]any{"inputData": map[string]any{"2": 5.0}}},
	}}
	out, err := inputDataToMap(c)
	require.NoError(t, err)
	data := out["nodes"].([]any)[0].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, map[string]any{"2": 5.0}, data["inputData"])

	_, err = inputDataToMap(map[string]any{"nodes": []any{
		map[string]any{"id": "y", "data": map[string]any{"inputData": "oops"}},
	}})
	var ee *ElementError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "y", ee.Element)

	_, err = inputDataToMap(map[string]any{"nodes": []any{map[string]any{"id": "z"}}})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "z", ee.Element)
}

func TestBareHandles_RejectsForeignPrefix(t *testing.T) {
	doc := legacyDoc(t)
	doc.Content["edges"].([]any)[1].(map[string]any)["targetHandle"] = "zz-0"

	_, err := Default().Migrate(doc)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.From)
	assert.Equal(t, "bare-handles", se.Step)
	assert.Equal(t, "keep", se.Element)
}

func TestBareHandles_HyphenatedNodeIDs(t *testing.T) {
	c := map[string]any{"edges": []any{map[string]any{
		"id": "e", "source": "1f-2a", "sourceHandle": "1f-2a-3", "target": "9-9", "targetHandle": "9-9-0",
	}}}
	out, err := bareHandles(c)
	require.NoError(t, err)
	e := out["edges"].([]any)[0].(map[string]any)
	assert.Equal(t, "3", e["sourceHandle"])
	assert.Equal(t, "0", e["targetHandle"])
}

func TestRenameSchemaIDs_RemovedType(t *testing.T) {
	doc := legacyDoc(t)
	doc.Content["nodes"].([]any)[2].(map[string]any)["data"].(map[string]any)["schemaId"] = "chainner:image:preview"

	_, err := Default().Migrate(doc)
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.From)
	assert.Equal(t, "c", se.Element)
	assert.Contains(t, err.Error(), "chainner:image:preview")
}

func TestRenameSchemaIDs_MissingSchema(t *testing.T) {
	_, err := renameSchemaIDs(map[string]any{"nodes": []any{
		map[string]any{"data": map[string]any{}},
	}})
	var ee *ElementError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "nodes[0]", ee.Element)
}

func TestList_MissingAndWrongType(t *testing.T) {
	c := map[string]any{}
	l, err := list(c, "nodes")
	require.NoError(t, err)
	assert.Empty(t, l)
	assert.Contains(t, c, "nodes")

	_, err = list(map[string]any{"nodes": "x"}, "nodes")
	assert.Error(t, err)
}

func TestFlattenNodeData_KeepsNumbers(t *testing.T) {
	doc, err := chain.Decode([]byte(`{"version": "0.9.0", "migration": 4, "content": {
		"nodes": [{"id": "a", "position": {"x": 12.25, "y": -3},
			"data": {"schemaId": "chainner:utility:number", "inputData": {"0": 9007199254740993}}}],
		"edges": []}}`))
	require.NoError(t, err)

	out, err := Default().Migrate(doc)
	require.NoError(t, err)
	g := toGraph(t, out)

	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Equal(t, graph.Position{X: 12.25, Y: -3}, a.Position)
	assert.Equal(t, json.Number("9007199254740993"), a.Inputs["0"])
}
