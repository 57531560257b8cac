package chain

import (
	"errors"
	"fmt"
)

// ErrDecode is the sentinel wrapped by every DecodeError.
var ErrDecode = errors.New("decode error")

// DecodeError reports raw bytes that do not form a chain document envelope.
type DecodeError struct {
	Field string // envelope field at fault, empty for syntax errors
	Msg   string
	Err   error // underlying json or validation error, if any
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrDecode.Error(), e.Field, e.Msg)
	}
	if e.Msg == "" {
		return ErrDecode.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDecode.Error(), e.Msg)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }
