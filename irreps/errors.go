package irreps

import (
	"fmt"

	"github.com/pkg/errors"
)

// ShapeError reports an invalid dimension or a shape mismatch detected
// eagerly at construction time. It is always caller-visible and never
// recovered from silently.
type ShapeError struct {
	msg string
}

// Shapef creates a *ShapeError with a formatted message, annotated with a
// stack trace.
func Shapef(format string, args ...any) error {
	return errors.WithStack(&ShapeError{msg: fmt.Sprintf(format, args...)})
}

// Error implements the error interface.
func (e *ShapeError) Error() string { return e.msg }

// IsShapeError reports whether err wraps a *ShapeError.
func IsShapeError(err error) bool {
	var shapeErr *ShapeError
	return errors.As(err, &shapeErr)
}
