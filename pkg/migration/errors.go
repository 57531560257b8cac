package migration

import (
	"errors"
	"fmt"
)

var (
	// ErrStep is wrapped by every StepError.
	ErrStep = errors.New("migration step failed")

	// ErrFutureSchema is wrapped by every FutureSchemaError.
	ErrFutureSchema = errors.New("unsupported future schema")
)

// StepError reports a migration step that could not interpret its input.
// The whole migration is abandoned; no partially migrated document exists.
type StepError struct {
	From    int    // source revision of the failing step
	Step    string // step name
	Element string // offending node/edge id or index path, if known
	Err     error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: revision %d (%s)", ErrStep.Error(), e.From, e.Step)
	}
	return fmt.Sprintf("%s: revision %d (%s): %v", ErrStep.Error(), e.From, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStep}
	}
	return []error{ErrStep, e.Err}
}

// FutureSchemaError reports a document written at a schema revision newer
// than this engine knows. Such documents are refused, never guessed at.
type FutureSchemaError struct {
	Revision int
	Current  int
}

func (e *FutureSchemaError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: document revision %d, newest supported %d", ErrFutureSchema.Error(), e.Revision, e.Current)
}

func (e *FutureSchemaError) Unwrap() error { return ErrFutureSchema }

// ElementError is returned by steps to name the element they choke on. The
// engine lifts Element into the surrounding StepError.
type ElementError struct {
	Element string
	Msg     string
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Element, e.Msg)
}

// Fail builds an ElementError.
func Fail(element, format string, args ...any) error {
	return &ElementError{Element: element, Msg: fmt.Sprintf(format, args...)}
}
