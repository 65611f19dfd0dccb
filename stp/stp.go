// Package stp implements the segmented tensor product descriptor: a
// backend-agnostic representation of a generalized multi-operand tensor
// contraction, given as a list of operands partitioned into irrep segments
// plus a table of paths, each coupling one segment per operand through a
// dense coefficient array.
//
// Descriptors are immutable value objects: they are created through a
// Builder (or by Compose) and every algebra operation returns a new
// descriptor. This makes descriptor construction and rewriting referentially
// transparent, so independent descriptors can be compiled fully in parallel
// without synchronization.
package stp

import (
	"fmt"
	"iter"
	"strings"
)

// SegmentedTensorProduct is the descriptor of one generalized contraction.
// By convention the last operand is the output: a backend accumulates every
// path's contribution additively into it.
//
// The zero value is not usable; descriptors are created with Builder.Build,
// FromSegments or Compose.
type SegmentedTensorProduct struct {
	operands []*Operand
	paths    []Path // Sorted lexicographically by index tuple.
}

// NumOperands returns the number of operands, output included.
func (d *SegmentedTensorProduct) NumOperands() int { return len(d.operands) }

// Operand returns the operand at the given index. Operands are immutable.
func (d *SegmentedTensorProduct) Operand(i int) *Operand { return d.operands[i] }

// Output returns the output operand, by convention the last one.
func (d *SegmentedTensorProduct) Output() *Operand { return d.operands[len(d.operands)-1] }

// NumInputs returns the number of input operands.
func (d *SegmentedTensorProduct) NumInputs() int { return len(d.operands) - 1 }

// NumPaths returns the number of paths in the table.
func (d *SegmentedTensorProduct) NumPaths() int { return len(d.paths) }

// Path returns a copy of the path at the given position in canonical order.
func (d *SegmentedTensorProduct) Path(i int) Path { return d.paths[i].clone() }

// Paths iterates over the path table in canonical order: sorted
// lexicographically by segment-reference tuple, ties broken by insertion
// order. The sequence is restartable and always yields the same order, which
// compiled plans depend on for reproducibility.
func (d *SegmentedTensorProduct) Paths() iter.Seq[Path] {
	return func(yield func(Path) bool) {
		for _, p := range d.paths {
			if !yield(p.clone()) {
				return
			}
		}
	}
}

// OperandSizes returns the flat size of each operand.
func (d *SegmentedTensorProduct) OperandSizes() []int {
	sizes := make([]int, len(d.operands))
	for i, op := range d.operands {
		sizes[i] = op.Size()
	}
	return sizes
}

// Subscripts returns the comma-separated mode subscripts of the operands,
// e.g. "uv,u,v".
func (d *SegmentedTensorProduct) Subscripts() string {
	parts := make([]string, len(d.operands))
	for i, op := range d.operands {
		parts[i] = op.Modes()
	}
	return strings.Join(parts, ",")
}

// Flops estimates the number of multiply-accumulate operations needed to
// execute the descriptor once per batch element.
func (d *SegmentedTensorProduct) Flops(batchSize int) int {
	total := 0
	for _, p := range d.paths {
		cost := p.Coefficients.Size()
		for _, dim := range d.modeBindings(p) {
			cost *= dim
		}
		total += cost
	}
	return total * batchSize
}

// Memory estimates the number of buffer elements read and written per batch
// element: the sum of all operand sizes.
func (d *SegmentedTensorProduct) Memory(batchSize int) int {
	total := 0
	for _, op := range d.operands {
		total += op.Size()
	}
	return total * batchSize
}

// modeBindings returns the dimension bound by each mode letter across the
// path's referenced segments. Bindings are consistent by construction.
func (d *SegmentedTensorProduct) modeBindings(p Path) map[rune]int {
	bindings := make(map[rune]int)
	for opIdx, segIdx := range p.Indices {
		op := d.operands[opIdx]
		segment := op.segments[segIdx]
		for axis, r := range op.modes {
			bindings[r] = segment.Dims[axis]
		}
	}
	return bindings
}

// Equal reports structural equality: same operands and same path table.
// For equality modulo construction order, compare StructuralHash instead.
func (d *SegmentedTensorProduct) Equal(other *SegmentedTensorProduct) bool {
	if len(d.operands) != len(other.operands) || len(d.paths) != len(other.paths) {
		return false
	}
	for i, op := range d.operands {
		if !op.Equal(other.operands[i]) {
			return false
		}
	}
	for i, p := range d.paths {
		q := other.paths[i]
		if p.Compare(q) != 0 || p.Weight != q.Weight || !p.Coefficients.Equal(q.Coefficients) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (d *SegmentedTensorProduct) String() string {
	parts := make([]string, len(d.operands))
	for i, op := range d.operands {
		parts[i] = op.String()
	}
	return fmt.Sprintf("SegmentedTensorProduct(%s -> %s, %d paths)",
		strings.Join(parts[:len(parts)-1], " x "), parts[len(parts)-1], len(d.paths))
}
