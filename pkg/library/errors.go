package library

import "errors"

// ErrNotFound is returned when no chain has the requested id.
var ErrNotFound = errors.New("chain not found")
