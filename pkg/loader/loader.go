// Package loader turns raw chain documents into validated graphs: decode,
// verify the checksum, migrate to the current schema revision, build the
// graph. Each stage short-circuits with a typed error; a checksum mismatch
// only produces a warning.
package loader

import (
	"encoding/json"
	"fmt"
	"time"

	"chain-keeper/internal/logger"
	"chain-keeper/pkg/chain"
	"chain-keeper/pkg/checksum"
	"chain-keeper/pkg/graph"
	"chain-keeper/pkg/migration"
)

// WarningKind names a non-fatal load finding.
type WarningKind string

const WarnChecksumMismatch WarningKind = "checksum_mismatch"

// Warning is a non-fatal finding attached to a successful load.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Result is a successful load.
type Result struct {
	Graph    *graph.Graph
	Document *chain.Document // migrated envelope
	Checksum checksum.Status // verified against the document as read
	From     int             // schema revision as read
	Applied  []string        // migration steps applied, in order
	Warnings []Warning
}

// Loader loads chain documents. It holds no mutable state and is safe for
// concurrent use.
type Loader struct {
	engine *migration.Engine
	log    *logger.Logger
}

// New returns a loader. A nil engine means migration.Default(); a nil log
// discards output.
func New(engine *migration.Engine, log *logger.Logger) *Loader {
	if engine == nil {
		engine = migration.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{engine: engine, log: log}
}

// Engine returns the migration engine in use.
func (l *Loader) Engine() *migration.Engine {
	return l.engine
}

// Load decodes raw and loads the resulting document.
func (l *Loader) Load(raw []byte) (*Result, error) {
	doc, err := chain.Decode(raw)
	if err != nil {
		loadsTotal.WithLabelValues(KindDecode).Inc()
		return nil, &LoadError{Stage: StageDecode, Err: err}
	}
	return l.LoadDocument(doc)
}

// LoadDocument loads an already decoded document. doc is not modified.
func (l *Loader) LoadDocument(doc *chain.Document) (*Result, error) {
	res, err := l.load(doc)
	if err != nil {
		loadsTotal.WithLabelValues(Kind(err)).Inc()
		return nil, err
	}
	loadsTotal.WithLabelValues("ok").Inc()
	return res, nil
}

func (l *Loader) load(doc *chain.Document) (*Result, error) {
	res := &Result{From: doc.Revision()}

	status, err := checksum.Verify(doc)
	if err != nil {
		return nil, &LoadError{Stage: StageDecode, Err: err}
	}
	res.Checksum = status
	checksumStatusTotal.WithLabelValues(status.String()).Inc()
	if status == checksum.Mismatch {
		l.log.Warn("chain checksum mismatch", "version", doc.Version, "revision", res.From)
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarnChecksumMismatch,
			Message: fmt.Sprintf("recorded checksum %s does not match content; the document may have been edited or corrupted", *doc.Checksum),
		})
	}

	migrated, err := l.engine.MigrateWith(doc, func(s migration.Step) {
		res.Applied = append(res.Applied, s.Name)
		migrationStepsTotal.WithLabelValues(s.Name).Inc()
		l.log.Debug("migration step applied", "step", s.Name, "from", s.From)
	})
	if err != nil {
		return nil, &LoadError{Stage: StageMigrate, Err: err}
	}
	res.Document = migrated

	data, err := json.Marshal(migrated.Content)
	if err != nil {
		return nil, &LoadError{Stage: StageGraph, Err: fmt.Errorf("marshal migrated content: %w", err)}
	}
	g, err := graph.FromJSON(data)
	if err != nil {
		return nil, &LoadError{Stage: StageGraph, Err: err}
	}
	res.Graph = g
	return res, nil
}

// Seal produces a current-revision document for g, stamped with appVersion
// and now, and carrying a fresh checksum.
func (l *Loader) Seal(g *graph.Graph, appVersion string, now time.Time) (*chain.Document, error) {
	data, err := json.Marshal(g.Content())
	if err != nil {
		return nil, fmt.Errorf("seal chain: marshal graph: %w", err)
	}
	var content map[string]any
	if err := chain.DecodeJSON(data, &content); err != nil {
		return nil, fmt.Errorf("seal chain: %w", err)
	}

	rev := l.engine.Current()
	ts := now.UTC().Format(time.RFC3339)
	doc := &chain.Document{
		Version:   appVersion,
		Content:   content,
		Timestamp: &ts,
		Migration: &rev,
	}
	return checksum.Seal(doc)
}
