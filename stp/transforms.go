package stp

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/LiamZhang100/cuEquivariance/irreps"
)

// This file holds the descriptor algebra: structure-preserving rewrites that
// return new descriptors, never mutating the receiver. The rewrites used by
// the planner (PruneZeroPaths, ConsolidatePaths, MergeSegments, SqueezeModes)
// all preserve each operand's flat memory layout, so a plan built on the
// rewritten descriptor addresses the caller's original buffers correctly.

// newDescriptor assembles a descriptor from already-validated parts, sorting
// the paths canonically.
func newDescriptor(operands []*Operand, paths []Path) *SegmentedTensorProduct {
	sort.SliceStable(paths, func(i, j int) bool { return paths[i].Compare(paths[j]) < 0 })
	return &SegmentedTensorProduct{operands: operands, paths: paths}
}

// PermuteOperands returns a new descriptor with operands reordered so that
// result operand i is the receiver's operand order[i]. Every path's index
// tuple and coefficient axes are permuted to match. Typically used to
// normalize which operand is the output before compilation.
func (d *SegmentedTensorProduct) PermuteOperands(order ...int) (*SegmentedTensorProduct, error) {
	if len(order) != len(d.operands) {
		return nil, irreps.Shapef("permutation %v has %d entries, descriptor has %d operands", order, len(order), len(d.operands))
	}
	seen := make([]bool, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(order) || seen[idx] {
			return nil, irreps.Shapef("%v is not a permutation of the %d operands", order, len(d.operands))
		}
		seen[idx] = true
	}

	operands := make([]*Operand, len(order))
	for newIdx, oldIdx := range order {
		operands[newIdx] = d.operands[oldIdx]
	}
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		indices := make([]int, len(order))
		for newIdx, oldIdx := range order {
			indices[newIdx] = p.Indices[oldIdx]
		}
		paths[i] = Path{Indices: indices, Coefficients: p.Coefficients.transpose(order), Weight: p.Weight}
	}
	// Permutation can bring previously-distinct paths into collision order;
	// re-apply the dedup policy.
	return newDescriptor(operands, paths).ConsolidatePaths(), nil
}

// ConsolidatePaths re-applies the canonical de-duplication policy: paths with
// identical index tuples and exactly proportional coefficients are merged by
// weight accumulation. Idempotent.
func (d *SegmentedTensorProduct) ConsolidatePaths() *SegmentedTensorProduct {
	byKey := make(map[string][]int)
	var paths []Path
nextPath:
	for _, p := range d.paths {
		key := p.indexKey()
		for _, pos := range byKey[key] {
			if factor, ok := paths[pos].Coefficients.ProportionalScale(p.Coefficients); ok {
				paths[pos].Weight += factor * p.Weight
				continue nextPath
			}
		}
		byKey[key] = append(byKey[key], len(paths))
		paths = append(paths, p.clone())
	}
	return newDescriptor(d.operands, paths)
}

// SortPaths returns a descriptor with the path table in canonical order.
// Descriptors always keep their paths sorted, so this is a normalization
// no-op kept for symmetry with the other rewrites.
func (d *SegmentedTensorProduct) SortPaths() *SegmentedTensorProduct {
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
	}
	return newDescriptor(d.operands, paths)
}

// SortSegments returns a descriptor with every operand's segments back in
// canonical order, path indices remapped to match. Descriptors built through
// Builder.Build already have this order; the rewrite restores it after
// layout-changing transforms. Operand flat layouts change accordingly.
func (d *SegmentedTensorProduct) SortSegments() *SegmentedTensorProduct {
	operands := make([]*Operand, len(d.operands))
	remaps := make([][]int, len(d.operands))
	for i, op := range d.operands {
		sorted, remap := canonicalSegmentOrder(op.segments)
		operands[i] = &Operand{modes: op.modes, segments: sorted}
		remaps[i] = remap
	}
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
		for opIdx, segIdx := range paths[i].Indices {
			paths[i].Indices[opIdx] = remaps[opIdx][segIdx]
		}
	}
	return newDescriptor(operands, paths)
}

// RemoveEmptySegments drops segments that no path references, remapping the
// surviving segment indices. Operand flat layouts shrink accordingly, so
// buffers laid out for the original descriptor no longer match.
func (d *SegmentedTensorProduct) RemoveEmptySegments() *SegmentedTensorProduct {
	operands := make([]*Operand, len(d.operands))
	remaps := make([][]int, len(d.operands))
	for opIdx, op := range d.operands {
		used := make([]bool, len(op.segments))
		for _, p := range d.paths {
			used[p.Indices[opIdx]] = true
		}
		remap := make([]int, len(op.segments))
		kept := make([]irreps.Segment, 0, len(op.segments))
		for segIdx, s := range op.segments {
			remap[segIdx] = len(kept)
			if used[segIdx] {
				kept = append(kept, s)
			}
		}
		operands[opIdx] = &Operand{modes: op.modes, segments: kept}
		remaps[opIdx] = remap
	}
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
		for opIdx, segIdx := range paths[i].Indices {
			paths[i].Indices[opIdx] = remaps[opIdx][segIdx]
		}
	}
	return newDescriptor(operands, paths)
}

// PruneZeroPaths drops paths whose weight is exactly zero or whose
// coefficient array is entirely zero. Exact-zero semantics: values merely
// close to zero are kept.
func (d *SegmentedTensorProduct) PruneZeroPaths() *SegmentedTensorProduct {
	paths := make([]Path, 0, len(d.paths))
	for _, p := range d.paths {
		if p.Weight == 0 || p.Coefficients.IsZero() {
			continue
		}
		paths = append(paths, p.clone())
	}
	return newDescriptor(d.operands, paths)
}

// SqueezeModes removes every mode axis whose dimension is 1 across all
// segments of its operand, together with its subscript letter. This is a
// representation optimization only: flat layouts are unchanged and the
// computed function is identical on the reshaped operands.
func (d *SegmentedTensorProduct) SqueezeModes() *SegmentedTensorProduct {
	operands := make([]*Operand, len(d.operands))
	for opIdx, op := range d.operands {
		if len(op.segments) == 0 {
			operands[opIdx] = op
			continue
		}
		keep := make([]bool, len(op.modes))
		anyDropped := false
		for axis := range op.modes {
			keep[axis] = false
			for _, s := range op.segments {
				if s.Dims[axis] != 1 {
					keep[axis] = true
					break
				}
			}
			anyDropped = anyDropped || !keep[axis]
		}
		if !anyDropped {
			operands[opIdx] = op
			continue
		}
		var modes strings.Builder
		for axis, r := range op.modes {
			if keep[axis] {
				modes.WriteRune(r)
			}
		}
		segments := make([]irreps.Segment, len(op.segments))
		for i, s := range op.segments {
			dims := make([]int, 0, len(s.Dims))
			for axis, dim := range s.Dims {
				if keep[axis] {
					dims = append(dims, dim)
				}
			}
			segments[i] = irreps.Segment{Irrep: s.Irrep, Dims: dims}
		}
		operands[opIdx] = &Operand{modes: modes.String(), segments: segments}
	}
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
	}
	return newDescriptor(operands, paths)
}

// MergeSegments merges adjacent segments of an input operand that have
// identical shapes and are never distinguished by the path table: for every
// path touching one there is a path touching the other that is otherwise
// identical, with equal coefficients and weight. The merged segment sums the
// two multiplicities along the leading mode axis.
//
// Only adjacent pairs merge, so each operand's flat layout is preserved.
// Only input operands whose mode letters appear on no other operand are
// candidates: a shared letter couples the merged multiplicity axis to other
// operands' layouts, which the rewrite does not touch.
func (d *SegmentedTensorProduct) MergeSegments() *SegmentedTensorProduct {
	result := d
	for opIdx := 0; opIdx < result.NumInputs(); opIdx++ {
		if len(result.operands[opIdx].modes) == 0 {
			continue // No mode axis to accumulate the merged multiplicity on.
		}
		shared := false
		for otherIdx, other := range result.operands {
			if otherIdx != opIdx && strings.ContainsAny(other.modes, result.operands[opIdx].modes) {
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		for {
			merged := result.mergeFirstAdjacentPair(opIdx)
			if merged == nil {
				break
			}
			result = merged
		}
	}
	return result
}

// mergeFirstAdjacentPair merges the first mergeable adjacent segment pair of
// the given operand, or returns nil if there is none.
func (d *SegmentedTensorProduct) mergeFirstAdjacentPair(opIdx int) *SegmentedTensorProduct {
	op := d.operands[opIdx]
	for segIdx := 0; segIdx+1 < len(op.segments); segIdx++ {
		if !op.segments[segIdx].Equal(op.segments[segIdx+1]) {
			continue
		}
		if !d.pathsIndistinguishable(opIdx, segIdx, segIdx+1) {
			continue
		}
		return d.mergePair(opIdx, segIdx)
	}
	return nil
}

// pathsIndistinguishable reports whether the paths touching segment a of the
// operand biject onto the paths touching segment b with equal coefficients,
// weights and other-operand indices.
func (d *SegmentedTensorProduct) pathsIndistinguishable(opIdx, a, b int) bool {
	touchingA := d.pathsTouching(opIdx, a)
	touchingB := d.pathsTouching(opIdx, b)
	if len(touchingA) != len(touchingB) {
		return false
	}
	matched := make([]bool, len(touchingB))
	for _, pa := range touchingA {
		found := false
		for j, pb := range touchingB {
			if matched[j] || pa.Weight != pb.Weight || !pa.Coefficients.Equal(pb.Coefficients) {
				continue
			}
			same := true
			for k := range pa.Indices {
				if k != opIdx && pa.Indices[k] != pb.Indices[k] {
					same = false
					break
				}
			}
			if same {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (d *SegmentedTensorProduct) pathsTouching(opIdx, segIdx int) []Path {
	var touching []Path
	for _, p := range d.paths {
		if p.Indices[opIdx] == segIdx {
			touching = append(touching, p)
		}
	}
	return touching
}

// mergePair merges segments segIdx and segIdx+1 of the given operand, which
// were already verified to be equal-shaped and path-indistinguishable.
func (d *SegmentedTensorProduct) mergePair(opIdx, segIdx int) *SegmentedTensorProduct {
	op := d.operands[opIdx]
	mergedDims := slices.Clone(op.segments[segIdx].Dims)
	mergedDims[0] += op.segments[segIdx+1].Dims[0]

	segments := make([]irreps.Segment, 0, len(op.segments)-1)
	segments = append(segments, op.segments[:segIdx]...)
	segments = append(segments, irreps.Segment{Irrep: op.segments[segIdx].Irrep, Dims: mergedDims})
	segments = append(segments, op.segments[segIdx+2:]...)

	operands := slices.Clone(d.operands)
	operands[opIdx] = &Operand{modes: op.modes, segments: segments}

	paths := make([]Path, 0, len(d.paths))
	for _, p := range d.paths {
		idx := p.Indices[opIdx]
		if idx == segIdx+1 {
			continue // Covered by its twin touching segIdx.
		}
		q := p.clone()
		if idx > segIdx+1 {
			q.Indices[opIdx]--
		}
		paths = append(paths, q)
	}
	return newDescriptor(operands, paths)
}

// NormalizePathsForOperand rescales path weights so that, for each segment of
// the given operand, the total squared norm of the coefficients feeding it is
// 1. With unit-variance inputs this keeps the output segments at unit
// variance, the usual initialization convention for equivariant layers.
func (d *SegmentedTensorProduct) NormalizePathsForOperand(opIdx int) (*SegmentedTensorProduct, error) {
	if opIdx < 0 {
		opIdx += len(d.operands)
	}
	if opIdx < 0 || opIdx >= len(d.operands) {
		return nil, irreps.Shapef("operand index out of range for %d operands", len(d.operands))
	}
	totals := make([]float64, d.operands[opIdx].NumSegments())
	for _, p := range d.paths {
		norm := p.Coefficients.Norm()
		totals[p.Indices[opIdx]] += p.Weight * p.Weight * norm * norm
	}
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
		if total := totals[p.Indices[opIdx]]; total > 0 {
			paths[i].Weight /= math.Sqrt(total)
		}
	}
	return newDescriptor(d.operands, paths), nil
}

// Scale returns the descriptor with every path weight multiplied by factor.
func (d *SegmentedTensorProduct) Scale(factor float64) *SegmentedTensorProduct {
	paths := make([]Path, len(d.paths))
	for i, p := range d.paths {
		paths[i] = p.clone()
		paths[i].Weight *= factor
	}
	return newDescriptor(d.operands, paths)
}

// Canonicalize applies the function-preserving cleanup rewrites: zero-path
// pruning, path consolidation and canonical renaming of the mode letters.
// Layouts are unchanged.
func (d *SegmentedTensorProduct) Canonicalize() *SegmentedTensorProduct {
	return d.PruneZeroPaths().ConsolidatePaths().renameModesCanonically()
}

// renameModesCanonically renames mode letters to 'a','b','c',... in order of
// first appearance across the operands, so that descriptors differing only in
// their choice of letters (e.g. relabeled by Compose) become identical.
func (d *SegmentedTensorProduct) renameModesCanonically() *SegmentedTensorProduct {
	rename := make(map[rune]rune)
	next := 'a'
	operands := make([]*Operand, len(d.operands))
	changed := false
	for opIdx, op := range d.operands {
		var sb strings.Builder
		for _, r := range op.modes {
			mapped, ok := rename[r]
			if !ok {
				mapped = next
				rename[r] = mapped
				next++
			}
			sb.WriteRune(mapped)
		}
		operands[opIdx] = op
		if sb.String() != op.modes {
			operands[opIdx] = &Operand{modes: sb.String(), segments: op.segments}
			changed = true
		}
	}
	if !changed {
		return d
	}
	return &SegmentedTensorProduct{operands: operands, paths: d.paths}
}
