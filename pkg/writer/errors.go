package writer

import (
	"errors"
	"fmt"
)

// ErrPartiallyWritten is returned when the PEB window was exhausted
// before the payload (or, in UBI mode, the full window layout) was
// completely delivered.
var ErrPartiallyWritten = errors.New("data only partially written due to error")

// GeometryError reports a window, payload, or volume size that does
// not fit the device or its own stated constraints.
type GeometryError struct {
	msg string
}

func (e *GeometryError) Error() string { return e.msg }

func errGeometry(format string, args ...interface{}) error {
	return &GeometryError{msg: fmt.Sprintf(format, args...)}
}

// UsageError reports a fatal misuse of the engine's configuration
// (mutually exclusive options, a missing mandatory option) that must
// be caught before anything destructive happens.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

func errUsage(format string, args ...interface{}) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}
