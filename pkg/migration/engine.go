// Package migration upgrades chain documents written at older schema
// revisions to the current one.
//
// The engine holds one step per source revision. Step r turns content at
// revision r into content at revision r+1. Migrating a document applies
// every step from its revision up to Current, strictly in order. Steps work
// on a private deep copy of the content, so the caller's document is never
// touched and a failing step leaves nothing half-applied.
package migration

import (
	"errors"
	"fmt"
	"slices"

	"chain-keeper/pkg/chain"
)

// Step is a pure transformation of raw document content from revision From
// to From+1. Apply owns its argument and may modify it in place. It must be
// deterministic.
type Step struct {
	From  int
	Name  string
	Apply func(content map[string]any) (map[string]any, error)
}

// Engine is an ordered, gap-free set of migration steps. It is immutable and
// safe for concurrent use.
type Engine struct {
	steps []Step
}

// New returns an engine for the given steps, which must cover revisions
// 0..n-1 exactly once each. Order of the arguments does not matter.
func New(steps ...Step) (*Engine, error) {
	sorted := slices.Clone(steps)
	slices.SortStableFunc(sorted, func(a, b Step) int { return a.From - b.From })
	for i, s := range sorted {
		if s.Apply == nil {
			return nil, fmt.Errorf("migration step %q: no apply func", s.Name)
		}
		if s.From != i {
			return nil, fmt.Errorf("migration step %q: expected source revision %d, got %d", s.Name, i, s.From)
		}
	}
	return &Engine{steps: sorted}, nil
}

// MustNew is like New but panics on an invalid step set.
func MustNew(steps ...Step) *Engine {
	e, err := New(steps...)
	if err != nil {
		panic(err)
	}
	return e
}

var defaultEngine = MustNew(History()...)

// Default returns the engine for this release's schema history.
func Default() *Engine {
	return defaultEngine
}

// Current is the newest schema revision the engine produces.
func (e *Engine) Current() int {
	return len(e.steps)
}

// Steps returns the steps in application order.
func (e *Engine) Steps() []Step {
	return slices.Clone(e.steps)
}

// Pending returns the steps Migrate would apply to doc. It is empty for
// current and future documents.
func (e *Engine) Pending(doc *chain.Document) []Step {
	rev := doc.Revision()
	if rev < 0 || rev >= len(e.steps) {
		return nil
	}
	return slices.Clone(e.steps[rev:])
}

// Migrate upgrades doc to Current. A document already at Current is
// returned as is.
func (e *Engine) Migrate(doc *chain.Document) (*chain.Document, error) {
	return e.MigrateWith(doc, nil)
}

// MigrateWith is Migrate with a callback invoked after each applied step.
func (e *Engine) MigrateWith(doc *chain.Document, applied func(Step)) (*chain.Document, error) {
	rev := doc.Revision()
	cur := e.Current()
	switch {
	case rev < 0:
		return nil, &chain.DecodeError{Field: "migration", Msg: fmt.Sprintf("invalid schema revision %d", rev)}
	case rev > cur:
		return nil, &FutureSchemaError{Revision: rev, Current: cur}
	case rev == cur:
		return doc, nil
	}

	content := chain.CloneObject(doc.Content)
	for _, s := range e.steps[rev:] {
		next, err := s.Apply(content)
		if err != nil {
			return nil, stepError(s, err)
		}
		if next == nil {
			return nil, &StepError{From: s.From, Step: s.Name, Err: errors.New("step produced no content")}
		}
		content = next
		if applied != nil {
			applied(s)
		}
	}

	out := &chain.Document{
		Version:   doc.Version,
		Content:   content,
		Migration: &cur,
	}
	if doc.Timestamp != nil {
		ts := *doc.Timestamp
		out.Timestamp = &ts
	}
	// the old checksum described pre-migration content; it is dropped
	return out, nil
}

func stepError(s Step, err error) *StepError {
	se := &StepError{From: s.From, Step: s.Name, Err: err}
	var ee *ElementError
	if errors.As(err, &ee) {
		se.Element = ee.Element
	}
	return se
}
