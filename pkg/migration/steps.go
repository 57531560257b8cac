package migration

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// History is the schema history of the chain format, oldest first.
//
//	0 -> 1  add-edge-ids       edges get stable ids
//	1 -> 2  input-data-map     positional input lists become port-keyed objects
//	2 -> 3  bare-handles       "<node>-<port>" handles become "<port>"
//	3 -> 4  rename-schema-ids  legacy node type ids are renamed
//	4 -> 5  flatten-node-data  node data moves to the top level, canvas noise is dropped
func History() []Step {
	return []Step{
		{From: 0, Name: "add-edge-ids", Apply: addEdgeIDs},
		{From: 1, Name: "input-data-map", Apply: inputDataToMap},
		{From: 2, Name: "bare-handles", Apply: bareHandles},
		{From: 3, Name: "rename-schema-ids", Apply: renameSchemaIDs},
		{From: 4, Name: "flatten-node-data", Apply: flattenNodeData},
	}
}

// edgeNamespace seeds the name-based UUIDs given to legacy edges, so the
// same edge always receives the same id.
var edgeNamespace = uuid.MustParse("3b0c8e52-6a1f-4d7e-9b2a-c4f1e07d5a93")

// renamedSchemaIDs maps node type ids that changed name to their new name.
var renamedSchemaIDs = map[string]string{
	"chainner:pytorch:upscale":          "chainner:pytorch:upscale_image",
	"chainner:image:caption":            "chainner:image:add_caption",
	"chainner:image:split_transparency": "chainner:image:separate_transparency",
	"chainner:image:hstack":             "chainner:image:stack_images",
	"chainner:image:load_directory":     "chainner:image:file_iterator",
}

// removedSchemaIDs lists node types that no longer exist.
var removedSchemaIDs = map[string]string{
	"chainner:image:preview":           "replaced by chainner:image:view, which takes different inputs",
	"chainner:ncnn:interpolate_models": "dropped without replacement",
}

func addEdgeIDs(content map[string]any) (map[string]any, error) {
	edges, err := list(content, "edges")
	if err != nil {
		return nil, err
	}
	for i, v := range edges {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, Fail(fmt.Sprintf("edges[%d]", i), "edge is not an object")
		}
		if id, _ := e["id"].(string); id != "" {
			continue
		}
		src, _ := e["source"].(string)
		srcHandle, _ := e["sourceHandle"].(string)
		dst, _ := e["target"].(string)
		dstHandle, _ := e["targetHandle"].(string)
		key := strings.Join([]string{src, srcHandle, dst, dstHandle}, "\x00")
		e["id"] = uuid.NewSHA1(edgeNamespace, []byte(key)).String()
	}
	return content, nil
}

func inputDataToMap(content map[string]any) (map[string]any, error) {
	nodes, err := list(content, "nodes")
	if err != nil {
		return nil, err
	}
	for i, v := range nodes {
		n, data, err := nodeData(i, v)
		if err != nil {
			return nil, err
		}
		switch in := data["inputData"].(type) {
		case nil:
			data["inputData"] = map[string]any{}
		case []any:
			m := make(map[string]any, len(in))
			for j, x := range in {
				m[strconv.Itoa(j)] = x
			}
			data["inputData"] = m
		case map[string]any:
			// written by a build that already keyed inputs by port
		default:
			return nil, Fail(ref("nodes", i, n), "inputData is neither a list nor an object")
		}
	}
	return content, nil
}

func bareHandles(content map[string]any) (map[string]any, error) {
	edges, err := list(content, "edges")
	if err != nil {
		return nil, err
	}
	ends := [...]struct{ node, handle string }{
		{"source", "sourceHandle"},
		{"target", "targetHandle"},
	}
	for i, v := range edges {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, Fail(fmt.Sprintf("edges[%d]", i), "edge is not an object")
		}
		for _, end := range ends {
			nodeID, _ := e[end.node].(string)
			h, ok := e[end.handle].(string)
			if !ok {
				return nil, Fail(ref("edges", i, e), "%s is missing", end.handle)
			}
			prefix := nodeID + "-"
			if nodeID == "" || len(h) <= len(prefix) || !strings.HasPrefix(h, prefix) {
				return nil, Fail(ref("edges", i, e), "%s %q is not prefixed with %s %q", end.handle, h, end.node, nodeID)
			}
			e[end.handle] = h[len(prefix):]
		}
	}
	return content, nil
}

func renameSchemaIDs(content map[string]any) (map[string]any, error) {
	nodes, err := list(content, "nodes")
	if err != nil {
		return nil, err
	}
	for i, v := range nodes {
		n, data, err := nodeData(i, v)
		if err != nil {
			return nil, err
		}
		id, _ := data["schemaId"].(string)
		if id == "" {
			return nil, Fail(ref("nodes", i, n), "node has no schemaId")
		}
		if why, gone := removedSchemaIDs[id]; gone {
			return nil, Fail(ref("nodes", i, n), "node type %q no longer exists: %s", id, why)
		}
		if to, ok := renamedSchemaIDs[id]; ok {
			data["schemaId"] = to
		}
	}
	return content, nil
}

func flattenNodeData(content map[string]any) (map[string]any, error) {
	nodes, err := list(content, "nodes")
	if err != nil {
		return nil, err
	}
	for i, v := range nodes {
		n, data, err := nodeData(i, v)
		if err != nil {
			return nil, err
		}
		pos := map[string]any{"x": 0.0, "y": 0.0}
		if p, ok := n["position"].(map[string]any); ok {
			if x, ok := number(p["x"]); ok {
				pos["x"] = x
			}
			if y, ok := number(p["y"]); ok {
				pos["y"] = y
			}
		}
		inputs := data["inputData"]
		if inputs == nil {
			inputs = map[string]any{}
		}
		nodes[i] = map[string]any{
			"id":        n["id"],
			"schemaId":  data["schemaId"],
			"position":  pos,
			"inputData": inputs,
		}
	}

	edges, err := list(content, "edges")
	if err != nil {
		return nil, err
	}
	for i, v := range edges {
		e, ok := v.(map[string]any)
		if !ok {
			return nil, Fail(fmt.Sprintf("edges[%d]", i), "edge is not an object")
		}
		edges[i] = map[string]any{
			"id":           e["id"],
			"source":       e["source"],
			"sourceHandle": e["sourceHandle"],
			"target":       e["target"],
			"targetHandle": e["targetHandle"],
		}
	}

	return map[string]any{"nodes": nodes, "edges": edges}, nil
}

// list returns content[key] as a slice. A missing key is an empty list.
func list(content map[string]any, key string) ([]any, error) {
	v, ok := content[key]
	if !ok || v == nil {
		l := []any{}
		content[key] = l
		return l, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, Fail(key, "must be a list")
	}
	return l, nil
}

func nodeData(i int, v any) (node, data map[string]any, err error) {
	n, ok := v.(map[string]any)
	if !ok {
		return nil, nil, Fail(fmt.Sprintf("nodes[%d]", i), "node is not an object")
	}
	d, ok := n["data"].(map[string]any)
	if !ok {
		return nil, nil, Fail(ref("nodes", i, n), "node has no data object")
	}
	return n, d, nil
}

// ref names an element by id when it has one, by position otherwise.
func ref(kind string, i int, obj map[string]any) string {
	if id, _ := obj["id"].(string); id != "" {
		return id
	}
	return fmt.Sprintf("%s[%d]", kind, i)
}

// number reports whether v is a JSON number, decoded either way.
func number(v any) (any, bool) {
	switch n := v.(type) {
	case json.Number:
		if _, err := n.Float64(); err != nil {
			return nil, false
		}
		return n, true
	case float64:
		return n, true
	}
	return nil, false
}
