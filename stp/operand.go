package stp

import (
	"fmt"
	"iter"
	"strings"

	"github.com/LiamZhang100/cuEquivariance/irreps"
)

// Operand describes one operand of a segmented tensor product: an ordered
// list of segments plus the operand's mode subscripts — one lowercase letter
// per mode axis, shared by every segment of the operand. Mode letters name
// the multiplicity axes the way einsum subscripts do: a letter appearing on
// several operands of a path identifies those axes, and letters absent from
// the output operand are summed over.
//
// Segments partition the operand's flat address space in table order:
// offsets are the prefix sums of the segment sizes, never stored.
//
// Operands are immutable once built.
type Operand struct {
	modes    string
	segments []irreps.Segment
}

// NewOperand creates an operand from its mode subscripts and segments.
// Every segment must have exactly len(modes) mode axes, and the mode letters
// must be distinct lowercase letters.
func NewOperand(modes string, segments ...irreps.Segment) (*Operand, error) {
	if err := validateModes(modes); err != nil {
		return nil, err
	}
	op := &Operand{modes: modes, segments: make([]irreps.Segment, 0, len(segments))}
	for i, s := range segments {
		if s.NumModes() != len(modes) {
			return nil, irreps.Shapef("segment #%d (%s) has %d mode axes, operand subscripts %q require %d",
				i, s, s.NumModes(), modes, len(modes))
		}
		if s.Irrep.Dim <= 0 {
			return nil, irreps.Shapef("segment #%d has invalid irrep %s", i, s.Irrep)
		}
		op.segments = append(op.segments, s.Clone())
	}
	return op, nil
}

func validateModes(modes string) error {
	for i, r := range modes {
		if r < 'a' || r > 'z' {
			return irreps.Shapef("mode subscripts %q must be lowercase letters", modes)
		}
		if strings.ContainsRune(modes[:i], r) {
			return irreps.Shapef("mode subscripts %q repeat letter %q", modes, r)
		}
	}
	return nil
}

// Modes returns the operand's mode subscripts.
func (op *Operand) Modes() string { return op.modes }

// NumSegments returns the number of segments.
func (op *Operand) NumSegments() int { return len(op.segments) }

// Segment returns a copy of the segment at the given index.
func (op *Operand) Segment(i int) irreps.Segment {
	return op.segments[i].Clone()
}

// Segments iterates over (index, segment) in table order.
func (op *Operand) Segments() iter.Seq2[int, irreps.Segment] {
	return func(yield func(int, irreps.Segment) bool) {
		for i, s := range op.segments {
			if !yield(i, s) {
				return
			}
		}
	}
}

// Size returns the operand's total flat size: the sum of its segment sizes.
func (op *Operand) Size() int {
	total := 0
	for _, s := range op.segments {
		total += s.Size()
	}
	return total
}

// Offsets returns the flat element offset of each segment, derived by
// prefix-summing segment sizes in table order. The returned slice has
// NumSegments()+1 entries, the last being the operand's total size, so that
// segment i occupies [Offsets()[i], Offsets()[i+1]).
func (op *Operand) Offsets() []int {
	offsets := make([]int, len(op.segments)+1)
	for i, s := range op.segments {
		offsets[i+1] = offsets[i] + s.Size()
	}
	return offsets
}

// Equal reports structural equality of modes and segment lists.
func (op *Operand) Equal(other *Operand) bool {
	if op.modes != other.modes || len(op.segments) != len(other.segments) {
		return false
	}
	for i, s := range op.segments {
		if !s.Equal(other.segments[i]) {
			return false
		}
	}
	return true
}

// clone makes a deep copy.
func (op *Operand) clone() *Operand {
	segments := make([]irreps.Segment, len(op.segments))
	for i, s := range op.segments {
		segments[i] = s.Clone()
	}
	return &Operand{modes: op.modes, segments: segments}
}

// String implements fmt.Stringer, e.g. "u:[16x0e(1) 16x1o(3)]".
func (op *Operand) String() string {
	parts := make([]string, len(op.segments))
	for i, s := range op.segments {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s:[%s]", op.modes, strings.Join(parts, " "))
}
