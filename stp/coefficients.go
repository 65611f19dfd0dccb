package stp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"

	"github.com/LiamZhang100/cuEquivariance/irreps"
)

// Coefficients is a dense numeric array coupling the irrep axes of the
// segments referenced by one path. Its shape has one axis per operand, each
// matching the referenced segment's irrep dimension.
//
// While the public fields can be introspected, they shouldn't be changed:
// Coefficients values are shared freely between descriptors and plans.
type Coefficients struct {
	Shape []int
	Data  []float64 // Row-major.
}

// NewCoefficients creates a Coefficients array from its shape and row-major
// flat data. The data is copied. It panics with an exception on a shape
// mismatch; see NewCoefficientsOrError.
func NewCoefficients(shape []int, data []float64) *Coefficients {
	c, err := NewCoefficientsOrError(shape, data)
	if err != nil {
		exceptions.Panicf("stp.NewCoefficients(%v, %d values): %v", shape, len(data), err)
	}
	return c
}

// NewCoefficientsOrError is the same as NewCoefficients, but returns a
// *irreps.ShapeError instead of panicking.
func NewCoefficientsOrError(shape []int, data []float64) (*Coefficients, error) {
	size := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, irreps.Shapef("coefficients cannot have an axis with dimension <= 0, got shape %v", shape)
		}
		size *= dim
	}
	if size != len(data) {
		return nil, irreps.Shapef("coefficients shape %v requires %d values, got %d", shape, size, len(data))
	}
	return &Coefficients{Shape: slices.Clone(shape), Data: slices.Clone(data)}, nil
}

// NewScalarCoefficient creates a rank-0 Coefficients holding a single value.
func NewScalarCoefficient(value float64) *Coefficients {
	return &Coefficients{Shape: []int{}, Data: []float64{value}}
}

// Identity creates the (dim, dim) identity coupling.
func Identity(dim int) *Coefficients {
	data := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		data[i*dim+i] = 1
	}
	return &Coefficients{Shape: []int{dim, dim}, Data: data}
}

// Rank returns the number of axes.
func (c *Coefficients) Rank() int { return len(c.Shape) }

// Size returns the total number of values.
func (c *Coefficients) Size() int { return len(c.Data) }

// At returns the value at the given multi-dimensional indices.
func (c *Coefficients) At(indices ...int) float64 {
	if len(indices) != len(c.Shape) {
		exceptions.Panicf("Coefficients.At(%v): expected %d indices for shape %v", indices, len(c.Shape), c.Shape)
	}
	flat := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= c.Shape[axis] {
			exceptions.Panicf("Coefficients.At(%v): index out of range for shape %v", indices, c.Shape)
		}
		flat = flat*c.Shape[axis] + idx
	}
	return c.Data[flat]
}

// IsZero reports whether every value is exactly zero.
func (c *Coefficients) IsZero() bool {
	for _, v := range c.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// Scale returns a new Coefficients with every value multiplied by factor.
func (c *Coefficients) Scale(factor float64) *Coefficients {
	data := make([]float64, len(c.Data))
	for i, v := range c.Data {
		data[i] = v * factor
	}
	return &Coefficients{Shape: slices.Clone(c.Shape), Data: data}
}

// Equal reports exact structural equality of shape and values.
func (c *Coefficients) Equal(other *Coefficients) bool {
	return slices.Equal(c.Shape, other.Shape) && slices.Equal(c.Data, other.Data)
}

// ProportionalScale returns the factor such that other == factor*c, if one
// exists under exact float64 arithmetic. There is deliberately no tolerance:
// near-proportional coefficient arrays are kept as distinct paths.
func (c *Coefficients) ProportionalScale(other *Coefficients) (factor float64, ok bool) {
	if !slices.Equal(c.Shape, other.Shape) {
		return 0, false
	}
	for i, v := range c.Data {
		if v != 0 {
			factor = other.Data[i] / v
			break
		}
		if other.Data[i] != 0 {
			return 0, false
		}
	}
	for i, v := range c.Data {
		if other.Data[i] != v*factor {
			return 0, false
		}
	}
	return factor, true
}

// Norm returns the L2 norm of the values.
func (c *Coefficients) Norm() float64 {
	sum := 0.0
	for _, v := range c.Data {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Contract contracts axis of c against otherAxis of other, which must have
// the same dimension. The result's axes are c's axes without axis, followed
// by other's axes without otherAxis.
func (c *Coefficients) Contract(axis int, other *Coefficients, otherAxis int) (*Coefficients, error) {
	if axis < 0 || axis >= c.Rank() || otherAxis < 0 || otherAxis >= other.Rank() {
		return nil, irreps.Shapef("contract axes (%d, %d) out of range for shapes %v and %v",
			axis, otherAxis, c.Shape, other.Shape)
	}
	k := c.Shape[axis]
	if k != other.Shape[otherAxis] {
		return nil, irreps.Shapef("cannot contract axis %d of shape %v with axis %d of shape %v: dimensions differ",
			axis, c.Shape, otherAxis, other.Shape)
	}

	// View each array as (left, k, right) around the contracted axis.
	leftA, rightA := splitAround(c.Shape, axis)
	leftB, rightB := splitAround(other.Shape, otherAxis)

	outShape := make([]int, 0, c.Rank()+other.Rank()-2)
	outShape = append(outShape, c.Shape[:axis]...)
	outShape = append(outShape, c.Shape[axis+1:]...)
	outShape = append(outShape, other.Shape[:otherAxis]...)
	outShape = append(outShape, other.Shape[otherAxis+1:]...)

	out := make([]float64, leftA*rightA*leftB*rightB)
	for la := 0; la < leftA; la++ {
		for ra := 0; ra < rightA; ra++ {
			base := (la*rightA + ra) * leftB * rightB
			for kk := 0; kk < k; kk++ {
				va := c.Data[(la*k+kk)*rightA+ra]
				if va == 0 {
					continue
				}
				for lb := 0; lb < leftB; lb++ {
					for rb := 0; rb < rightB; rb++ {
						out[base+lb*rightB+rb] += va * other.Data[(lb*k+kk)*rightB+rb]
					}
				}
			}
		}
	}
	return &Coefficients{Shape: outShape, Data: out}, nil
}

// transpose returns a new Coefficients with axes reordered so that result
// axis i is the original axis perm[i].
func (c *Coefficients) transpose(perm []int) *Coefficients {
	rank := c.Rank()
	outShape := make([]int, rank)
	for i, axis := range perm {
		outShape[i] = c.Shape[axis]
	}
	out := make([]float64, len(c.Data))
	indices := make([]int, rank)
	for flat := range c.Data {
		// Unravel flat into the original indices.
		rem := flat
		for axis := rank - 1; axis >= 0; axis-- {
			indices[axis] = rem % c.Shape[axis]
			rem /= c.Shape[axis]
		}
		outFlat := 0
		for i, axis := range perm {
			outFlat = outFlat*outShape[i] + indices[axis]
		}
		out[outFlat] = c.Data[flat]
	}
	return &Coefficients{Shape: outShape, Data: out}
}

// splitAround returns the product of the dimensions before and after the
// given axis.
func splitAround(shape []int, axis int) (left, right int) {
	left, right = 1, 1
	for _, dim := range shape[:axis] {
		left *= dim
	}
	for _, dim := range shape[axis+1:] {
		right *= dim
	}
	return
}

// writeHash writes a canonical binary encoding of the coefficients to w.
func (c *Coefficients) writeHash(w io.Writer) {
	_ = binary.Write(w, binary.LittleEndian, int64(len(c.Shape)))
	for _, dim := range c.Shape {
		_ = binary.Write(w, binary.LittleEndian, int64(dim))
	}
	for _, v := range c.Data {
		_ = binary.Write(w, binary.LittleEndian, math.Float64bits(v))
	}
}

// String implements fmt.Stringer.
func (c *Coefficients) String() string {
	parts := make([]string, len(c.Shape))
	for i, dim := range c.Shape {
		parts[i] = fmt.Sprintf("%d", dim)
	}
	return fmt.Sprintf("c[%s]", strings.Join(parts, ","))
}
