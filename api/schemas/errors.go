package schemas

import (
	"errors"
	"fmt"
)

// AdapterError wraps a failure inside the environment adapter: the browser
// is unavailable, an observation is malformed, or an action could not be
// applied. Components retry these locally before escalating.
type AdapterError struct {
	Op  string // the adapter operation: "reset", "observe", "act", "close"
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("environment adapter: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// NewAdapterError wraps err for the given adapter operation.
func NewAdapterError(op string, err error) *AdapterError {
	return &AdapterError{Op: op, Err: err}
}

// IsAdapterError reports whether err is (or wraps) an AdapterError.
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}
