// Package descriptors builds segmented tensor product descriptors for the
// usual equivariant operations: linear layers, elementwise, full, channelwise
// and fully connected tensor products.
//
// The package knows no group theory: admissible couplings and their
// coefficient arrays come from a caller-supplied Couplings implementation.
// Every constructor normalizes the path weights for the output operand, so
// unit-variance inputs produce unit-variance outputs.
package descriptors

import (
	"slices"

	"github.com/LiamZhang100/cuEquivariance/irreps"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

// Couplings supplies the coupling solutions between irreps.
type Couplings interface {
	// Decompose lists the irreps appearing in the product of a and b, with
	// repetitions if an irrep appears with multiplicity.
	Decompose(a, b irreps.Irrep) []irreps.Irrep

	// ClebschGordan returns the independent coupling solutions from (a, b)
	// into out, each a coefficient array of shape (a.Dim, b.Dim, out.Dim).
	// An empty result means the coupling is not admissible.
	ClebschGordan(a, b, out irreps.Irrep) []*stp.Coefficients
}

// ScalarCouplings couples one-dimensional irreps only: the product of two
// scalars is one scalar with unit coefficient. Useful for tests and for
// descriptors over plain channel mixing.
type ScalarCouplings struct {
	// Label of the product scalar irrep; defaults to "0".
	Label string
}

// Decompose implements Couplings.
func (c ScalarCouplings) Decompose(a, b irreps.Irrep) []irreps.Irrep {
	if a.Dim != 1 || b.Dim != 1 {
		return nil
	}
	label := c.Label
	if label == "" {
		label = "0"
	}
	return []irreps.Irrep{irreps.New(label, 1)}
}

// ClebschGordan implements Couplings.
func (c ScalarCouplings) ClebschGordan(a, b, out irreps.Irrep) []*stp.Coefficients {
	if a.Dim != 1 || b.Dim != 1 || out.Dim != 1 {
		return nil
	}
	return []*stp.Coefficients{stp.NewCoefficients([]int{1, 1, 1}, []float64{1})}
}

// scalar is the irrep used for weight operand segments.
var scalar = irreps.Irrep{Label: "0", Dim: 1}

// OperandIrreps reads back the irreps layout of one operand of a descriptor,
// with each segment's multiplicity collapsed to the product of its mode dims.
// Segment order follows the descriptor's canonical layout, so the returned
// list matches the operand's flat buffer.
func OperandIrreps(d *stp.SegmentedTensorProduct, opIdx int) irreps.Irreps {
	op := d.Operand(opIdx)
	out := make(irreps.Irreps, 0, op.NumSegments())
	for _, segment := range op.Segments() {
		out = append(out, irreps.MulIrrep{Mul: segment.Mul(), Irrep: segment.Irrep})
	}
	return out
}

// withLeadingScalarAxis prepends a size-1 axis for the weights operand.
func withLeadingScalarAxis(c *stp.Coefficients) *stp.Coefficients {
	shape := append([]int{1}, c.Shape...)
	return stp.NewCoefficients(shape, c.Data)
}

// Linear builds the descriptor of an equivariant linear transformation:
// operands (weights[uv], input[u], output[v]), with one weight segment and
// one identity-coupling path for every (input segment, output segment) pair
// of equal irreps.
func Linear(in, out irreps.Irreps) (*stp.SegmentedTensorProduct, error) {
	b, err := stp.NewBuilder("uv", "u", "v")
	if err != nil {
		return nil, err
	}
	inSegments := make([]int, len(in))
	for i, mi := range in {
		if inSegments[i], err = b.AddSegment(1, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	outSegments := make([]int, len(out))
	for j, mo := range out {
		if outSegments[j], err = b.AddSegment(2, irreps.MakeSegment(mo.Irrep, mo.Mul)); err != nil {
			return nil, err
		}
	}
	for i, mi := range in {
		for j, mo := range out {
			if mi.Irrep != mo.Irrep {
				continue
			}
			wSeg, err := b.AddSegment(0, irreps.MakeSegment(scalar, mi.Mul, mo.Mul))
			if err != nil {
				return nil, err
			}
			identity := withLeadingScalarAxis(stp.Identity(mi.Irrep.Dim))
			if err = b.AddPath(1, identity, wSeg, inSegments[i], outSegments[j]); err != nil {
				return nil, err
			}
		}
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.NormalizePathsForOperand(-1)
}

// ElementwiseTensorProduct builds the weightless elementwise tensor product
// (lhs[u], rhs[u], output[u]): the two inputs must carry the same total
// number of irrep instances; they are aligned multiplicity by multiplicity
// and coupled channel-wise.
//
// irreps3Filter, when non-nil, keeps only output irreps listed in it.
func ElementwiseTensorProduct(in1, in2 irreps.Irreps, couplings Couplings, irreps3Filter []irreps.Irrep) (*stp.SegmentedTensorProduct, error) {
	if in1.NumIrreps() != in2.NumIrreps() {
		return nil, irreps.Shapef("the input irreps must have the same number of irreps, got %s and %s", in1, in2)
	}
	aligned1, aligned2 := alignIrreps(in1, in2)

	b, err := stp.NewBuilder("u", "u", "u")
	if err != nil {
		return nil, err
	}
	for entry := range aligned1 {
		mul := aligned1[entry].Mul
		ir1, ir2 := aligned1[entry].Irrep, aligned2[entry].Irrep
		i1, err := b.AddSegment(0, irreps.MakeSegment(ir1, mul))
		if err != nil {
			return nil, err
		}
		i2, err := b.AddSegment(1, irreps.MakeSegment(ir2, mul))
		if err != nil {
			return nil, err
		}
		for _, ir3 := range couplings.Decompose(ir1, ir2) {
			if !keepIrrep(irreps3Filter, ir3) {
				continue
			}
			for _, cg := range couplings.ClebschGordan(ir1, ir2, ir3) {
				i3, err := b.AddSegment(2, irreps.MakeSegment(ir3, mul))
				if err != nil {
					return nil, err
				}
				if err = b.AddPath(1, cg, i1, i2, i3); err != nil {
					return nil, err
				}
			}
		}
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.NormalizePathsForOperand(-1)
}

// FullTensorProduct builds the weightless full tensor product
// (lhs[u], rhs[v], output[uv]): every pair of input segments couples into
// every admissible output irrep, with multiplicity mul1*mul2.
func FullTensorProduct(in1, in2 irreps.Irreps, couplings Couplings, irreps3Filter []irreps.Irrep) (*stp.SegmentedTensorProduct, error) {
	b, err := stp.NewBuilder("u", "v", "uv")
	if err != nil {
		return nil, err
	}
	for _, mi := range in1 {
		if _, err = b.AddSegment(0, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for _, mi := range in2 {
		if _, err = b.AddSegment(1, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for i1, mi1 := range in1 {
		for i2, mi2 := range in2 {
			for _, ir3 := range couplings.Decompose(mi1.Irrep, mi2.Irrep) {
				if !keepIrrep(irreps3Filter, ir3) {
					continue
				}
				for _, cg := range couplings.ClebschGordan(mi1.Irrep, mi2.Irrep, ir3) {
					i3, err := b.AddSegment(2, irreps.MakeSegment(ir3, mi1.Mul, mi2.Mul))
					if err != nil {
						return nil, err
					}
					if err = b.AddPath(1, cg, i1, i2, i3); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.NormalizePathsForOperand(-1)
}

// ChannelwiseTensorProduct builds the weighted channelwise tensor product
// (weights[uv], lhs[u], rhs[v], output[uv]): every admissible (input1, input2)
// segment pair couples into its own output segment of multiplicity mul1*mul2,
// with one weight per channel pair. Computationally sparser than the fully
// connected tensor product, which additionally mixes output channels.
//
// irreps3Filter, when non-nil, keeps only output irreps listed in it.
func ChannelwiseTensorProduct(in1, in2 irreps.Irreps, couplings Couplings, irreps3Filter []irreps.Irrep) (*stp.SegmentedTensorProduct, error) {
	b, err := stp.NewBuilder("uv", "u", "v", "uv")
	if err != nil {
		return nil, err
	}
	for _, mi := range in1 {
		if _, err = b.AddSegment(1, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for _, mi := range in2 {
		if _, err = b.AddSegment(2, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for i1, mi1 := range in1 {
		for i2, mi2 := range in2 {
			for _, ir3 := range couplings.Decompose(mi1.Irrep, mi2.Irrep) {
				if !keepIrrep(irreps3Filter, ir3) {
					continue
				}
				for _, cg := range couplings.ClebschGordan(mi1.Irrep, mi2.Irrep, ir3) {
					wSeg, err := b.AddSegment(0, irreps.MakeSegment(scalar, mi1.Mul, mi2.Mul))
					if err != nil {
						return nil, err
					}
					i3, err := b.AddSegment(3, irreps.MakeSegment(ir3, mi1.Mul, mi2.Mul))
					if err != nil {
						return nil, err
					}
					if err = b.AddPath(1, withLeadingScalarAxis(cg), wSeg, i1, i2, i3); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.NormalizePathsForOperand(-1)
}

// FullyConnectedTensorProduct builds the weighted fully connected tensor
// product (weights[uvw], lhs[u], rhs[v], output[w]): every admissible
// (input1, input2, output) segment triple gets its own weight segment of
// shape (mul1, mul2, mul3).
func FullyConnectedTensorProduct(in1, in2, out irreps.Irreps, couplings Couplings) (*stp.SegmentedTensorProduct, error) {
	b, err := stp.NewBuilder("uvw", "u", "v", "w")
	if err != nil {
		return nil, err
	}
	for _, mi := range in1 {
		if _, err = b.AddSegment(1, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for _, mi := range in2 {
		if _, err = b.AddSegment(2, irreps.MakeSegment(mi.Irrep, mi.Mul)); err != nil {
			return nil, err
		}
	}
	for _, mo := range out {
		if _, err = b.AddSegment(3, irreps.MakeSegment(mo.Irrep, mo.Mul)); err != nil {
			return nil, err
		}
	}
	for i1, mi1 := range in1 {
		for i2, mi2 := range in2 {
			for i3, mo := range out {
				for _, cg := range couplings.ClebschGordan(mi1.Irrep, mi2.Irrep, mo.Irrep) {
					wSeg, err := b.AddSegment(0, irreps.MakeSegment(scalar, mi1.Mul, mi2.Mul, mo.Mul))
					if err != nil {
						return nil, err
					}
					if err = b.AddPath(1, withLeadingScalarAxis(cg), wSeg, i1, i2, i3); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	d, err := b.Build()
	if err != nil {
		return nil, err
	}
	return d.NormalizePathsForOperand(-1)
}

// keepIrrep reports whether ir passes the optional filter.
func keepIrrep(filter []irreps.Irrep, ir irreps.Irrep) bool {
	return filter == nil || slices.Contains(filter, ir)
}

// alignIrreps splits the multiplicities of two same-length-in-instances
// irreps lists so the resulting lists pair up entry by entry with equal
// multiplicities.
func alignIrreps(in1, in2 irreps.Irreps) (irreps.Irreps, irreps.Irreps) {
	l1 := slices.Clone(in1)
	l2 := slices.Clone(in2)
	for i := 0; i < min(len(l1), len(l2)); i++ {
		mul1, mul2 := l1[i].Mul, l2[i].Mul
		if mul1 < mul2 {
			l2 = slices.Insert(l2, i+1, irreps.MulIrrep{Mul: mul2 - mul1, Irrep: l2[i].Irrep})
			l2[i].Mul = mul1
		}
		if mul2 < mul1 {
			l1 = slices.Insert(l1, i+1, irreps.MulIrrep{Mul: mul1 - mul2, Irrep: l1[i].Irrep})
			l1[i].Mul = mul2
		}
	}
	return l1, l2
}
