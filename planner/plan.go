// Package planner compiles a segmented tensor product descriptor into an
// execution plan: an ordered sequence of path groups, each annotated with an
// execution strategy and precomputed buffer offsets, ready to be run by a
// numeric backend.
//
// Compilation is synchronous, CPU-bound and side effect free; plans are
// immutable once produced. An optional, injectable plan cache keyed by the
// descriptor's structural hash avoids recompiling equivalent descriptors.
package planner

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/LiamZhang100/cuEquivariance/dtypes"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

// Strategy tags how a path group should be executed by a backend.
type Strategy int

//go:generate go tool enumer -type Strategy plan.go

const (
	StrategyInvalid Strategy = iota

	// StrategyDense marks a group whose segment-index tuples form a complete
	// Cartesian product over the segments each operand contributes: the whole
	// group can run as one batched dense contraction.
	StrategyDense

	// StrategyIndexed marks a group with an irregular index pattern,
	// requiring explicit gather/scatter by segment offsets.
	StrategyIndexed
)

// Constraints parameterizes compilation for a target backend.
type Constraints struct {
	// DType is the element type of the operand buffers, used for the byte
	// size cost model that orders groups. Defaults to Float64.
	DType dtypes.DType
}

func (c Constraints) normalized() Constraints {
	if c.DType == dtypes.InvalidDType {
		c.DType = dtypes.Float64
	}
	return c
}

// key returns the constraints' contribution to the cache key.
func (c Constraints) key() string { return c.DType.String() }

// GroupPath is one path of a group, with the element offset of each
// referenced segment precomputed from the operand layouts so a backend can
// address flat buffers directly.
//
// While the public fields can be introspected, they shouldn't be changed.
type GroupPath struct {
	SegmentIndices []int
	Offsets        []int // Per operand, element offset of the referenced segment.
	Coefficients   *stp.Coefficients
	Weight         float64
}

// Group is an ordered set of paths sharing identical per-operand segment
// shapes and coefficient shape, so they can share one contraction kernel.
//
// Groups of one plan are independent: each accumulates additively into the
// output operand, so a backend may submit them in any order.
//
// While the public fields can be introspected, they shouldn't be changed.
type Group struct {
	Strategy Strategy

	// OperandShapes holds, per operand, the full segment shape (mode dims
	// followed by the irrep dim) shared by every path of the group.
	OperandShapes [][]int

	CoefficientShape []int

	// Paths in descriptor path-table order.
	Paths []GroupPath

	// ByteSize is the combined byte size of one segment block per operand
	// under the compile-time DType: the working-set cost used for ordering.
	ByteSize int
}

// Plan is the compiled form of one descriptor. Plans are immutable, hold no
// reference to the descriptor beyond its structural hash, and stay valid
// independently of any backend buffers.
type Plan struct {
	formatVersion int
	hash          stp.Hash
	constraints   Constraints
	operandModes  []string
	operandSizes  []int
	groups        []Group
}

// PlanFormatVersion tags the persisted plan encoding. A loaded plan with a
// different tag is discarded and recompiled, never silently reused.
const PlanFormatVersion = 1

// DescriptorHash returns the structural hash of the descriptor the plan was
// compiled from. It is the plan's cache key and version tag.
func (p *Plan) DescriptorHash() stp.Hash { return p.hash }

// Constraints returns the constraints the plan was compiled under.
func (p *Plan) Constraints() Constraints { return p.constraints }

// NumOperands returns the number of operands, output included.
func (p *Plan) NumOperands() int { return len(p.operandSizes) }

// OperandSizes returns the flat element size of each operand buffer.
func (p *Plan) OperandSizes() []int { return slices.Clone(p.operandSizes) }

// OperandModes returns the mode subscripts of each operand.
func (p *Plan) OperandModes() []string { return slices.Clone(p.operandModes) }

// NumGroups returns the number of path groups.
func (p *Plan) NumGroups() int { return len(p.groups) }

// Groups iterates over the path groups in plan order: non-decreasing
// combined operand byte size, ties in descriptor path-table order. The
// sequence is finite and restartable.
func (p *Plan) Groups() iter.Seq2[int, Group] {
	return func(yield func(int, Group) bool) {
		for i, g := range p.groups {
			if !yield(i, g) {
				return
			}
		}
	}
}

// String implements fmt.Stringer with a one-line summary.
func (p *Plan) String() string {
	var strategies []string
	for _, g := range p.groups {
		strategies = append(strategies, fmt.Sprintf("%s/%d", g.Strategy, len(g.Paths)))
	}
	return fmt.Sprintf("Plan(%s, %d groups: %s)", p.hash.String()[:8], len(p.groups), strings.Join(strategies, " "))
}

// Backend is the contract a numeric execution backend satisfies to run a
// plan. Given flat input buffers (one per input operand, sized per
// Plan.OperandSizes), Execute must, for every group, read the referenced
// input sub-regions at the precomputed offsets, contract them against each
// path's coefficients, and accumulate additively into the output operand's
// sub-region. The backend owns all buffer allocation.
type Backend interface {
	Execute(plan *Plan, inputs [][]float64) ([]float64, error)
}
