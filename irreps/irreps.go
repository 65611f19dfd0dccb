// Package irreps models irreducible representation labels and the typed
// sub-blocks (segments) they induce inside the operands of a segmented
// tensor product.
//
// An Irrep is an opaque label with a dimension: the package does not know any
// group theory, it only tracks dimensions, multiplicities and layout. Segments
// are immutable value types compared structurally.
package irreps

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Irrep is an opaque label identifying a representation type, together with
// the dimension of that representation. Equality is structural.
type Irrep struct {
	Label string
	Dim   int
}

// New creates an Irrep with the given label and dimension.
// It panics with an exception if dim <= 0; see NewOrError for the non-panicking variant.
func New(label string, dim int) Irrep {
	ir, err := NewOrError(label, dim)
	if err != nil {
		exceptions.Panicf("irreps.New(%q, %d): %v", label, dim, err)
	}
	return ir
}

// NewOrError is the same as New, but returns a *ShapeError instead of panicking.
func NewOrError(label string, dim int) (Irrep, error) {
	if dim <= 0 {
		return Irrep{}, Shapef("irrep %q must have dimension >= 1, got %d", label, dim)
	}
	return Irrep{Label: label, Dim: dim}, nil
}

// String implements fmt.Stringer.
func (ir Irrep) String() string {
	return fmt.Sprintf("%s(%d)", ir.Label, ir.Dim)
}

// Compare orders irreps by label and breaks ties by dimension.
// It follows the cmp.Compare convention.
func (ir Irrep) Compare(other Irrep) int {
	if c := strings.Compare(ir.Label, other.Label); c != 0 {
		return c
	}
	return ir.Dim - other.Dim
}

// Segment is a contiguous sub-block of one operand corresponding to one irrep
// instance. Dims are the mode dimensions (multiplicity and batch axes) that
// prefix the irrep's own dimension in the segment's shape.
type Segment struct {
	Irrep Irrep
	Dims  []int
}

// MakeSegment builds a segment of the given irrep with the given mode
// dimensions prefix. It panics with an exception on a non-positive dimension;
// see MakeSegmentOrError.
func MakeSegment(ir Irrep, dims ...int) Segment {
	s, err := MakeSegmentOrError(ir, dims...)
	if err != nil {
		exceptions.Panicf("irreps.MakeSegment(%s, %v): %v", ir, dims, err)
	}
	return s
}

// MakeSegmentOrError is the same as MakeSegment, but returns a *ShapeError
// instead of panicking.
func MakeSegmentOrError(ir Irrep, dims ...int) (Segment, error) {
	if ir.Dim <= 0 {
		return Segment{}, Shapef("segment irrep %q has dimension %d, must be >= 1", ir.Label, ir.Dim)
	}
	for _, dim := range dims {
		if dim <= 0 {
			return Segment{}, Shapef("segment of %s cannot have a mode with dimension <= 0, got %v", ir, dims)
		}
	}
	return Segment{Irrep: ir, Dims: slices.Clone(dims)}, nil
}

// Shape returns the full shape of the segment: the mode dimensions followed by
// the irrep dimension.
func (s Segment) Shape() []int {
	shape := make([]int, 0, len(s.Dims)+1)
	shape = append(shape, s.Dims...)
	return append(shape, s.Irrep.Dim)
}

// NumModes returns the number of mode axes preceding the irrep axis.
func (s Segment) NumModes() int { return len(s.Dims) }

// Mul returns the total multiplicity of the segment: the product of the mode
// dimensions. A segment with no modes has multiplicity 1.
func (s Segment) Mul() int {
	mul := 1
	for _, dim := range s.Dims {
		mul *= dim
	}
	return mul
}

// Size returns the total flattened size of the segment.
func (s Segment) Size() int {
	return s.Mul() * s.Irrep.Dim
}

// Equal reports structural equality: same irrep and same mode dimensions.
// Offsets are layout-derived and do not participate.
func (s Segment) Equal(other Segment) bool {
	return s.Irrep == other.Irrep && slices.Equal(s.Dims, other.Dims)
}

// Compare orders segments by the canonical composite key: irrep label, then
// irrep dimension, then multiplicity, then mode dims lexicographically.
func (s Segment) Compare(other Segment) int {
	if c := s.Irrep.Compare(other.Irrep); c != 0 {
		return c
	}
	if c := s.Mul() - other.Mul(); c != 0 {
		return c
	}
	return slices.Compare(s.Dims, other.Dims)
}

// Clone makes a deep copy of the segment.
func (s Segment) Clone() Segment {
	return Segment{Irrep: s.Irrep, Dims: slices.Clone(s.Dims)}
}

// String implements fmt.Stringer, printing e.g. "32x1o(3)" for a segment of
// irrep "1o" (dimension 3) with multiplicity 32.
func (s Segment) String() string {
	if len(s.Dims) == 0 {
		return s.Irrep.String()
	}
	parts := make([]string, len(s.Dims))
	for i, dim := range s.Dims {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return fmt.Sprintf("%sx%s", strings.Join(parts, "x"), s.Irrep)
}
