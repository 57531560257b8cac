package graph

// Position is where a node sits on the editor canvas. It has no effect on
// execution.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one processing unit instance in a chain.
type Node struct {
	ID       string         `json:"id"`
	SchemaID string         `json:"schemaId"`  // node type identifier, resolved by the node registry
	Position Position       `json:"position"`
	Inputs   map[string]any `json:"inputData"` // port -> literal value; nil means unset
}

// Edge connects an output port of one node to an input port of another.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle"`
}

// Content is the serialized payload of a chain document at the current
// schema revision.
type Content struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
