package planner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/LiamZhang100/cuEquivariance/stp"
)

// PlanningError reports an internal invariant violation detected during
// compilation. It is fatal and unexpected: compilation is deterministic, so
// retrying cannot help. The full descriptor context is attached for
// diagnosis.
type PlanningError struct {
	Descriptor string
	msg        string
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s (descriptor: %s)", e.msg, e.Descriptor)
}

// fatalf creates a *PlanningError carrying the descriptor context, annotated
// with a stack trace.
func fatalf(d *stp.SegmentedTensorProduct, format string, args ...any) error {
	return errors.WithStack(&PlanningError{
		Descriptor: d.String(),
		msg:        fmt.Sprintf(format, args...),
	})
}

// IsPlanningError reports whether err wraps a *PlanningError.
func IsPlanningError(err error) bool {
	var planningErr *PlanningError
	return errors.As(err, &planningErr)
}
