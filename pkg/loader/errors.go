package loader

import (
	"errors"
	"fmt"

	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/graph"
	"chain-keeper/pkg/migration"
)

// Stage is the load phase an error came from.
type Stage string

const (
	StageDecode  Stage = "decode"
	StageMigrate Stage = "migrate"
	StageGraph   Stage = "graph"
)

// LoadError wraps the typed failure of one load. Use errors.As to reach the
// underlying *chain.DecodeError, *migration.StepError,
// *migration.FutureSchemaError or *graph.MalformedGraphError.
type LoadError struct {
	Stage Stage
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load chain: %s: %v", e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Error kinds reported to users.
const (
	KindDecode         = "decode"
	KindMigrationStep  = "migration_step"
	KindFutureSchema   = "unsupported_future_schema"
	KindMalformedGraph = "malformed_graph"
	KindUnknown        = "unknown"
)

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, chain.ErrDecode):
		return KindDecode
	case errors.Is(err, migration.ErrFutureSchema):
		return KindFutureSchema
	case errors.Is(err, migration.ErrStep):
		return KindMigrationStep
	case errors.Is(err, graph.ErrMalformed):
		return KindMalformedGraph
	default:
		return KindUnknown
	}
}

// Element returns the node or edge id an error points at, if any.
func Element(err error) string {
	var se *migration.StepError
	if errors.As(err, &se) {
		return se.Element
	}
	var me *graph.MalformedGraphError
	if errors.As(err, &me) {
		return me.ID
	}
	var de *chain.DecodeError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
