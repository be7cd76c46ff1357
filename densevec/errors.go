package densevec

import (
	"errors"
	"fmt"

	"github.com/xDarkicex/densevec/internal/graph"
)

// Core errors. Engine-level sentinels are shared so errors.Is matches
// whichever layer produced them.
var (
	ErrFull               = graph.ErrFull
	ErrImmutable          = graph.ErrImmutable
	ErrOutOfMemory        = errors.New("allocation refused")
	ErrIncompatibleFormat = errors.New("incompatible index format")
	ErrMisconfiguration   = errors.New("index misconfiguration")
	ErrNotFound           = errors.New("key not found")
	ErrDuplicateKey       = errors.New("duplicate key")
)

// OpError wraps a failure with the public operation that hit it.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("densevec: %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	return &OpError{Op: op, Err: err}
}

func misconfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMisconfiguration, fmt.Sprintf(format, args...))
}
