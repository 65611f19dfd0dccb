package planner

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"k8s.io/klog/v2"

	"github.com/LiamZhang100/cuEquivariance/stp"
)

// Compile converts a descriptor into an execution plan:
//
//  1. Function-preserving algebra rewrites produce a minimal descriptor
//     (zero-path pruning, path consolidation, adjacent segment merging,
//     degenerate mode squeezing) — all layout preserving, so the plan's
//     offsets address the caller's original buffers.
//  2. Paths are grouped by identical per-operand segment shapes and
//     coefficient shape: same-shape paths can share one kernel invocation.
//  3. Each group is tagged StrategyDense if its index tuples form a complete
//     Cartesian product over the segments each operand contributes,
//     StrategyIndexed otherwise.
//  4. Groups are ordered by non-decreasing combined operand byte size (a
//     greedy working-set heuristic), ties broken by path-table order.
//  5. Per-path operand offsets are attached from the segment layouts.
//
// Compilation never fails because of problem size; it fails with a
// *PlanningError only on an internal invariant violation.
func Compile(d *stp.SegmentedTensorProduct, constraints Constraints) (*Plan, error) {
	constraints = constraints.normalized()
	hash := d.StructuralHash()

	rewritten := d.Canonicalize().MergeSegments().SqueezeModes()
	if klog.V(1).Enabled() {
		klog.Infof("planner: compiling %s: %d paths (%d before rewrites)",
			hash.String()[:8], rewritten.NumPaths(), d.NumPaths())
	}

	offsets := make([][]int, rewritten.NumOperands())
	modes := make([]string, rewritten.NumOperands())
	sizes := make([]int, rewritten.NumOperands())
	for opIdx := 0; opIdx < rewritten.NumOperands(); opIdx++ {
		op := rewritten.Operand(opIdx)
		offsets[opIdx] = op.Offsets()
		modes[opIdx] = op.Modes()
		sizes[opIdx] = op.Size()
	}

	// Group paths by per-operand segment shape plus coefficient shape.
	groupOf := make(map[string]int)
	var groups []Group
	pathPos := -1
	for p := range rewritten.Paths() {
		pathPos++
		shapes := make([][]int, rewritten.NumOperands())
		for opIdx, segIdx := range p.Indices {
			segment := rewritten.Operand(opIdx).Segment(segIdx)
			shapes[opIdx] = segment.Shape()
			if p.Coefficients.Shape[opIdx] != segment.Irrep.Dim {
				return nil, fatalf(d, "path #%d couples axis #%d of %v against segment %s: shapes were altered inconsistently",
					pathPos, opIdx, p.Coefficients.Shape, segment)
			}
		}
		key := groupKey(shapes, p.Coefficients.Shape)
		gIdx, ok := groupOf[key]
		if !ok {
			gIdx = len(groups)
			groupOf[key] = gIdx
			groups = append(groups, Group{
				OperandShapes:    shapes,
				CoefficientShape: slices.Clone(p.Coefficients.Shape),
			})
		}
		pathOffsets := make([]int, len(p.Indices))
		for opIdx, segIdx := range p.Indices {
			pathOffsets[opIdx] = offsets[opIdx][segIdx]
		}
		groups[gIdx].Paths = append(groups[gIdx].Paths, GroupPath{
			SegmentIndices: slices.Clone(p.Indices),
			Offsets:        pathOffsets,
			Coefficients:   p.Coefficients,
			Weight:         p.Weight,
		})
	}

	for gIdx := range groups {
		g := &groups[gIdx]
		g.Strategy = chooseStrategy(g)
		g.ByteSize = combinedByteSize(g, constraints)
	}
	// Greedy working-set ordering; stable sort keeps path-table order on ties.
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].ByteSize < groups[j].ByteSize })

	if klog.V(2).Enabled() {
		dense := 0
		for _, g := range groups {
			if g.Strategy == StrategyDense {
				dense++
			}
		}
		klog.Infof("planner: %s: %d groups (%d dense, %d indexed)",
			hash.String()[:8], len(groups), dense, len(groups)-dense)
	}

	return &Plan{
		formatVersion: PlanFormatVersion,
		hash:          hash,
		constraints:   constraints,
		operandModes:  modes,
		operandSizes:  sizes,
		groups:        groups,
	}, nil
}

// groupKey builds the map key identifying a group: the operand segment
// shapes and the coefficient shape.
func groupKey(shapes [][]int, coefficientShape []int) string {
	var sb strings.Builder
	for _, shape := range shapes {
		for _, dim := range shape {
			fmt.Fprintf(&sb, "%d,", dim)
		}
		sb.WriteByte(';')
	}
	sb.WriteByte('+')
	for _, dim := range coefficientShape {
		fmt.Fprintf(&sb, "%d,", dim)
	}
	return sb.String()
}

// chooseStrategy tags the group dense iff its distinct index tuples form the
// complete Cartesian product of the distinct segment indices each operand
// contributes.
func chooseStrategy(g *Group) Strategy {
	numOperands := len(g.OperandShapes)
	distinctPerOperand := make([]map[int]bool, numOperands)
	for opIdx := range distinctPerOperand {
		distinctPerOperand[opIdx] = make(map[int]bool)
	}
	tuples := make(map[string]bool)
	for _, p := range g.Paths {
		for opIdx, segIdx := range p.SegmentIndices {
			distinctPerOperand[opIdx][segIdx] = true
		}
		tuples[fmt.Sprint(p.SegmentIndices)] = true
	}
	product := 1
	for _, distinct := range distinctPerOperand {
		product *= len(distinct)
	}
	if len(tuples) == product && len(g.Paths) == len(tuples) {
		return StrategyDense
	}
	return StrategyIndexed
}

// combinedByteSize is the working-set estimate of one kernel invocation: one
// segment block per operand plus the coefficient array, in bytes.
func combinedByteSize(g *Group, constraints Constraints) int {
	elemSize := int(constraints.DType.Memory())
	total := 0
	for _, shape := range g.OperandShapes {
		blockSize := 1
		for _, dim := range shape {
			blockSize *= dim
		}
		total += blockSize * elemSize
	}
	coefSize := 1
	for _, dim := range g.CoefficientShape {
		coefSize *= dim
	}
	return total + coefSize*elemSize
}
