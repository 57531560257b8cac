package graph

import (
	"errors"
	"fmt"
)

// ErrMalformed is the sentinel wrapped by every MalformedGraphError.
var ErrMalformed = errors.New("malformed graph")

// Invariants reported by MalformedGraphError.
const (
	InvariantShape         = "shape"
	InvariantNodeID        = "node_id_required"
	InvariantDuplicateNode = "duplicate_node_id"
	InvariantEdgeID        = "edge_id_required"
	InvariantDuplicateEdge = "duplicate_edge_id"
	InvariantDanglingEdge  = "dangling_edge"
	InvariantFanIn         = "fan_in"
)

// MalformedGraphError reports content that violates a graph invariant. ID is
// the offending node or edge id (or the missing node id for dangling edges).
type MalformedGraphError struct {
	Invariant string
	ID        string
	Msg       string
}

func (e *MalformedGraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s %q", ErrMalformed.Error(), e.Invariant, e.ID)
	}
	return fmt.Sprintf("%s: %s %q: %s", ErrMalformed.Error(), e.Invariant, e.ID, e.Msg)
}

func (e *MalformedGraphError) Unwrap() error { return ErrMalformed }
