package stp

import (
	"slices"
	"sort"

	"github.com/LiamZhang100/cuEquivariance/irreps"
)

// Builder accumulates the operands and paths of a segmented tensor product
// under construction. Validation is eager: AddSegment and AddPath reject
// inconsistent shapes immediately, so Build cannot produce an invalid
// descriptor.
//
// Once Build is called the resulting descriptor is immutable; the builder can
// keep being used and built again, each Build returning an independent
// descriptor.
type Builder struct {
	modes    []string
	segments [][]irreps.Segment
	paths    []Path
	byKey    map[string][]int // Index-tuple key to positions in paths.
}

// NewBuilder creates a builder with one operand per mode-subscripts string,
// all initially without segments. By convention the last operand is the
// output.
func NewBuilder(operandModes ...string) (*Builder, error) {
	if len(operandModes) < 2 {
		return nil, irreps.Shapef("a segmented tensor product needs at least 2 operands (inputs and output), got %d", len(operandModes))
	}
	b := &Builder{
		modes:    slices.Clone(operandModes),
		segments: make([][]irreps.Segment, len(operandModes)),
		byKey:    make(map[string][]int),
	}
	for _, modes := range operandModes {
		if err := validateModes(modes); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// FromSegments creates a builder with the given operand segment lists
// already in place, one operand per list, using the given mode subscripts.
func FromSegments(operandModes []string, operandSegments [][]irreps.Segment) (*Builder, error) {
	if len(operandModes) != len(operandSegments) {
		return nil, irreps.Shapef("got %d mode subscripts for %d operands", len(operandModes), len(operandSegments))
	}
	b, err := NewBuilder(operandModes...)
	if err != nil {
		return nil, err
	}
	for opIdx, segments := range operandSegments {
		for _, s := range segments {
			if _, err = b.AddSegment(opIdx, s); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}

// NumOperands returns the number of operands.
func (b *Builder) NumOperands() int { return len(b.modes) }

// AddSegment appends a segment to the given operand and returns its segment
// index. The segment must have one mode axis per operand subscript letter.
func (b *Builder) AddSegment(operand int, segment irreps.Segment) (int, error) {
	if operand < 0 || operand >= len(b.modes) {
		return 0, irreps.Shapef("operand index %d out of range, descriptor has %d operands", operand, len(b.modes))
	}
	if segment.NumModes() != len(b.modes[operand]) {
		return 0, irreps.Shapef("segment %s has %d mode axes, operand #%d subscripts %q require %d",
			segment, segment.NumModes(), operand, b.modes[operand], len(b.modes[operand]))
	}
	if segment.Irrep.Dim <= 0 {
		return 0, irreps.Shapef("segment has invalid irrep %s", segment.Irrep)
	}
	for _, dim := range segment.Dims {
		if dim <= 0 {
			return 0, irreps.Shapef("segment %s has a mode with dimension <= 0", segment)
		}
	}
	b.segments[operand] = append(b.segments[operand], segment.Clone())
	return len(b.segments[operand]) - 1, nil
}

// AddPath adds one contraction term referencing the segment indices, one per
// operand. The coefficient array must have one axis per operand, each
// matching the referenced segment's irrep dimension, and the mode letters
// bound by the referenced segments must bind consistent dimensions across the
// path.
//
// If a path with the same index tuple and exactly proportional coefficients
// already exists, the two are merged by weight accumulation instead of
// growing the table; this is the canonical de-duplication policy.
// Proportionality is exact float64 equality after scaling, never a fuzzy
// tolerance.
func (b *Builder) AddPath(weight float64, coefficients *Coefficients, indices ...int) error {
	if len(indices) != len(b.modes) {
		return irreps.Shapef("path references %d operands, descriptor has %d", len(indices), len(b.modes))
	}
	if coefficients == nil {
		return irreps.Shapef("path requires a coefficient array")
	}
	if coefficients.Rank() != len(b.modes) {
		return irreps.Shapef("coefficients %v must have one axis per operand (%d), got rank %d",
			coefficients.Shape, len(b.modes), coefficients.Rank())
	}

	segments := make([]irreps.Segment, len(indices))
	for opIdx, segIdx := range indices {
		if segIdx < 0 || segIdx >= len(b.segments[opIdx]) {
			return irreps.Shapef("path references segment #%d of operand #%d, which has only %d segments",
				segIdx, opIdx, len(b.segments[opIdx]))
		}
		segments[opIdx] = b.segments[opIdx][segIdx]
		if coefficients.Shape[opIdx] != segments[opIdx].Irrep.Dim {
			return irreps.Shapef("coefficients axis #%d has dimension %d, segment #%d of operand #%d has irrep %s",
				opIdx, coefficients.Shape[opIdx], segIdx, opIdx, segments[opIdx].Irrep)
		}
	}
	if err := b.checkModeBindings(segments); err != nil {
		return err
	}

	path := Path{Indices: slices.Clone(indices), Coefficients: coefficients, Weight: weight}
	key := path.indexKey()
	for _, pos := range b.byKey[key] {
		existing := &b.paths[pos]
		if factor, ok := existing.Coefficients.ProportionalScale(coefficients); ok {
			existing.Weight += factor * weight
			return nil
		}
	}
	b.byKey[key] = append(b.byKey[key], len(b.paths))
	b.paths = append(b.paths, path)
	return nil
}

// checkModeBindings verifies that each mode letter binds the same dimension
// on every operand of the path, and that every output mode letter appears on
// at least one input operand.
func (b *Builder) checkModeBindings(segments []irreps.Segment) error {
	bindings := make(map[rune]int)
	inputLetters := make(map[rune]bool)
	for opIdx, segment := range segments {
		for axis, r := range b.modes[opIdx] {
			dim := segment.Dims[axis]
			if bound, seen := bindings[r]; seen && bound != dim {
				return irreps.Shapef("mode %q binds dimension %d on operand #%d but %d elsewhere in the path",
					r, dim, opIdx, bound)
			}
			bindings[r] = dim
			if opIdx < len(segments)-1 {
				inputLetters[r] = true
			}
		}
	}
	for _, r := range b.modes[len(segments)-1] {
		if !inputLetters[r] {
			return irreps.Shapef("output mode %q does not appear on any input operand of the path", r)
		}
	}
	return nil
}

// Build returns the immutable descriptor.
//
// Segments of each operand are put in canonical order (stable sort by irrep
// label, then multiplicity) and path indices remapped accordingly, so that
// structurally-equal descriptors compare equal regardless of construction
// order. Paths are stored sorted lexicographically by segment-reference
// tuple, ties broken by insertion order.
func (b *Builder) Build() (*SegmentedTensorProduct, error) {
	operands := make([]*Operand, len(b.modes))
	remaps := make([][]int, len(b.modes)) // Per operand: old segment index to canonical index.
	for i := range b.modes {
		sorted, remap := canonicalSegmentOrder(b.segments[i])
		op, err := NewOperand(b.modes[i], sorted...)
		if err != nil {
			return nil, err
		}
		operands[i] = op
		remaps[i] = remap
	}
	paths := make([]Path, len(b.paths))
	for i, p := range b.paths {
		paths[i] = p.clone()
		for opIdx, segIdx := range paths[i].Indices {
			paths[i].Indices[opIdx] = remaps[opIdx][segIdx]
		}
	}
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
	return &SegmentedTensorProduct{operands: operands, paths: paths}, nil
}

// canonicalSegmentOrder stable-sorts segments by their canonical composite
// key and returns the sorted list plus the old-index-to-new-index map.
func canonicalSegmentOrder(segments []irreps.Segment) (sorted []irreps.Segment, remap []int) {
	order := make([]int, len(segments))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return segments[order[a]].Compare(segments[order[b]]) < 0
	})
	sorted = make([]irreps.Segment, len(segments))
	remap = make([]int, len(segments))
	for newIdx, oldIdx := range order {
		sorted[newIdx] = segments[oldIdx]
		remap[oldIdx] = newIdx
	}
	return
}
