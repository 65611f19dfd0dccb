// Package naive implements a reference execution backend for compiled plans.
//
// It walks every group in plan order and every path within, gathers the
// referenced input segment blocks, contracts them against the path's
// coefficient matrix and accumulates into the output buffer. Both strategy
// tags execute the same way here: the dense/indexed distinction exists for
// backends that can batch a whole dense group into one kernel; as the
// correctness reference, this backend stays per-path.
package naive

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LiamZhang100/cuEquivariance/dtypes"
	"github.com/LiamZhang100/cuEquivariance/planner"
)

// Backend is a stateless reference implementation of planner.Backend.
type Backend struct{}

// New creates the reference backend.
func New() *Backend { return &Backend{} }

var _ planner.Backend = (*Backend)(nil)

// Execute runs the plan against flat float64 input buffers, one per input
// operand, and returns the output operand's buffer.
func (b *Backend) Execute(plan *planner.Plan, inputs [][]float64) ([]float64, error) {
	sizes := plan.OperandSizes()
	numInputs := plan.NumOperands() - 1
	if len(inputs) != numInputs {
		return nil, errors.Errorf("plan has %d input operands, got %d buffers", numInputs, len(inputs))
	}
	for i, buffer := range inputs {
		if len(buffer) != sizes[i] {
			return nil, errors.Errorf("input operand #%d needs %d elements, buffer has %d", i, sizes[i], len(buffer))
		}
	}
	modes := plan.OperandModes()
	output := make([]float64, sizes[numInputs])

	for _, group := range plan.Groups() {
		if err := b.executeGroup(group, modes, inputs, output); err != nil {
			return nil, err
		}
	}
	return output, nil
}

// executeGroup accumulates every path of the group into the output buffer.
func (b *Backend) executeGroup(group planner.Group, modes []string, inputs [][]float64, output []float64) error {
	numOperands := len(group.OperandShapes)
	irrepDims := make([]int, numOperands)
	for opIdx, shape := range group.OperandShapes {
		irrepDims[opIdx] = shape[len(shape)-1]
	}

	// Bind each mode letter to its dimension; the group's shapes are shared
	// by every path, so the bindings hold group-wide.
	letters, letterDims := bindModeLetters(group, modes)

	inRows := 1
	for _, dim := range irrepDims[:numOperands-1] {
		inRows *= dim
	}
	outDim := irrepDims[numOperands-1]

	for _, path := range group.Paths {
		// The coefficient array in row-major order with the output axis last
		// is exactly the (product of input irrep dims) x (output irrep dim)
		// contraction matrix.
		coefficients := mat.NewDense(inRows, outDim, path.Coefficients.Data)

		assignment := make([]int, len(letters))
		for {
			bases := modeBases(group, modes, letters, assignment, path.Offsets, irrepDims)
			v := kroneckerGather(inputs, bases[:numOperands-1], irrepDims[:numOperands-1])
			var y mat.VecDense
			y.MulVec(coefficients.T(), mat.NewVecDense(inRows, v))
			outBase := bases[numOperands-1]
			for k := 0; k < outDim; k++ {
				output[outBase+k] += path.Weight * y.AtVec(k)
			}
			if !nextAssignment(assignment, letterDims) {
				break
			}
		}
	}
	return nil
}

// bindModeLetters returns the distinct mode letters of the group, in order of
// first appearance, with the dimension each binds.
func bindModeLetters(group planner.Group, modes []string) (letters []rune, letterDims []int) {
	seen := make(map[rune]bool)
	for opIdx, opModes := range modes {
		for axis, r := range opModes {
			if seen[r] {
				continue
			}
			seen[r] = true
			letters = append(letters, r)
			letterDims = append(letterDims, group.OperandShapes[opIdx][axis])
		}
	}
	return
}

// modeBases computes, for the current letter assignment, the flat base offset
// of each operand's addressed irrep vector.
func modeBases(group planner.Group, modes []string, letters []rune, assignment []int, offsets []int, irrepDims []int) []int {
	value := make(map[rune]int, len(letters))
	for i, r := range letters {
		value[r] = assignment[i]
	}
	bases := make([]int, len(modes))
	for opIdx, opModes := range modes {
		flat := 0
		for axis, r := range opModes {
			flat = flat*group.OperandShapes[opIdx][axis] + value[r]
		}
		bases[opIdx] = offsets[opIdx] + flat*irrepDims[opIdx]
	}
	return bases
}

// kroneckerGather builds the Kronecker product of the input irrep vectors at
// the given bases, flat over the input irrep indices in operand order.
func kroneckerGather(inputs [][]float64, bases []int, irrepDims []int) []float64 {
	v := []float64{1}
	for opIdx, base := range bases {
		dim := irrepDims[opIdx]
		block := inputs[opIdx][base : base+dim]
		next := make([]float64, len(v)*dim)
		for i, a := range v {
			for k, x := range block {
				next[i*dim+k] = a * x
			}
		}
		v = next
	}
	return v
}

// nextAssignment advances the mixed-radix odometer; it returns false after
// the last assignment.
func nextAssignment(assignment []int, dims []int) bool {
	for i := len(assignment) - 1; i >= 0; i-- {
		assignment[i]++
		if assignment[i] < dims[i] {
			return true
		}
		assignment[i] = 0
	}
	return false
}

// ExecuteTyped runs the plan against buffers of any supported element type,
// converting through float64. The accumulation happens in float64, so
// narrower types only lose precision at the final store.
func ExecuteTyped[T dtypes.Supported](b *Backend, plan *planner.Plan, inputs [][]T) ([]T, error) {
	converted := make([][]float64, len(inputs))
	for i, buffer := range inputs {
		converted[i] = make([]float64, len(buffer))
		for j, value := range buffer {
			converted[i][j] = dtypes.ToFloat64(value)
		}
	}
	output, err := b.Execute(plan, converted)
	if err != nil {
		return nil, err
	}
	result := make([]T, len(output))
	for i, value := range output {
		result[i] = dtypes.FromFloat64[T](value)
	}
	return result, nil
}
