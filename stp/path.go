package stp

import (
	"fmt"
	"slices"
	"strings"
)

// Path is one elementary contraction term: one segment index per operand, a
// coefficient array coupling the referenced irrep axes, and a scalar weight.
//
// While the public fields can be introspected, they shouldn't be changed.
type Path struct {
	Indices      []int
	Coefficients *Coefficients
	Weight       float64
}

// SegmentIndex returns the referenced segment index on the given operand.
func (p Path) SegmentIndex(operand int) int { return p.Indices[operand] }

// Compare orders paths lexicographically by their segment-reference tuple.
// It does not inspect coefficients or weights: ties are resolved by insertion
// order via stable sorting.
func (p Path) Compare(other Path) int {
	return slices.Compare(p.Indices, other.Indices)
}

// clone makes a deep copy of the index tuple; the coefficient array is
// immutable and shared.
func (p Path) clone() Path {
	return Path{Indices: slices.Clone(p.Indices), Coefficients: p.Coefficients, Weight: p.Weight}
}

// indexKey returns the index tuple as a map key.
func (p Path) indexKey() string {
	var sb strings.Builder
	for i, idx := range p.Indices {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", idx)
	}
	return sb.String()
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return fmt.Sprintf("path(%s)*%v*%g", p.indexKey(), p.Coefficients, p.Weight)
}
