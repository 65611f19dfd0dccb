package descriptors

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiamZhang100/cuEquivariance/irreps"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

// deltaCouplings couples any irrep with the scalar (either side) into itself,
// with delta coefficients. Enough structure to exercise the constructors
// beyond pure scalars.
type deltaCouplings struct{}

func (deltaCouplings) Decompose(a, b irreps.Irrep) []irreps.Irrep {
	switch {
	case a.Dim == 1:
		return []irreps.Irrep{b}
	case b.Dim == 1:
		return []irreps.Irrep{a}
	}
	return nil
}

func (deltaCouplings) ClebschGordan(a, b, out irreps.Irrep) []*stp.Coefficients {
	var passthrough irreps.Irrep
	switch {
	case a.Dim == 1:
		passthrough = b
	case b.Dim == 1:
		passthrough = a
	default:
		return nil
	}
	if out != passthrough {
		return nil
	}
	data := make([]float64, passthrough.Dim*passthrough.Dim)
	for i := 0; i < passthrough.Dim; i++ {
		data[i*passthrough.Dim+i] = 1
	}
	return []*stp.Coefficients{stp.NewCoefficients([]int{a.Dim, b.Dim, out.Dim}, data)}
}

func TestLinearStructure(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in := irreps.Irreps{{Mul: 16, Irrep: scalar}, {Mul: 8, Irrep: vector}}
	out := irreps.Irreps{{Mul: 4, Irrep: scalar}, {Mul: 2, Irrep: vector}}

	d, err := Linear(in, out)
	require.NoError(t, err)

	require.Equal(t, 3, d.NumOperands())
	require.Equal(t, "uv,u,v", d.Subscripts())
	// One weight segment per same-irrep (input, output) pair.
	require.Equal(t, 2, d.NumPaths())
	require.Equal(t, 2, d.Operand(0).NumSegments())
	// Weight count: 16*4 scalar mixing plus 8*2 vector mixing.
	require.Equal(t, 16*4+8*2, d.Operand(0).Size())
	require.Equal(t, in.Dim(), d.Operand(1).Size())
	require.Equal(t, out.Dim(), d.Operand(2).Size())
}

func TestLinearSkipsMismatchedIrreps(t *testing.T) {
	in := irreps.Irreps{{Mul: 4, Irrep: irreps.New("0e", 1)}}
	out := irreps.Irreps{{Mul: 4, Irrep: irreps.New("1o", 3)}}
	d, err := Linear(in, out)
	require.NoError(t, err)
	require.Equal(t, 0, d.NumPaths())
	require.Equal(t, 0, d.Operand(0).Size())
}

func TestLinearNormalization(t *testing.T) {
	vector := irreps.New("1", 3)
	in := irreps.Irreps{{Mul: 2, Irrep: vector}}
	out := irreps.Irreps{{Mul: 5, Irrep: vector}}
	d, err := Linear(in, out)
	require.NoError(t, err)
	require.Equal(t, 1, d.NumPaths())
	for p := range d.Paths() {
		// Squared coefficient norm is 3 (identity over dim 3), so the weight
		// normalizes it back to unit total variance.
		require.InDelta(t, 1.0, p.Weight*p.Weight*3, 1e-12)
	}
}

func TestElementwiseTensorProduct(t *testing.T) {
	scalar := irreps.New("0", 1)
	in1 := irreps.Irreps{{Mul: 4, Irrep: scalar}}
	in2 := irreps.Irreps{{Mul: 4, Irrep: scalar}}
	d, err := ElementwiseTensorProduct(in1, in2, ScalarCouplings{}, nil)
	require.NoError(t, err)

	require.Equal(t, "u,u,u", d.Subscripts())
	require.Equal(t, 1, d.NumPaths())
	require.Equal(t, 4, d.Operand(0).Size())
	require.Equal(t, 4, d.Operand(2).Size())
}

func TestElementwiseRejectsMismatchedInstanceCounts(t *testing.T) {
	scalar := irreps.New("0", 1)
	in1 := irreps.Irreps{{Mul: 4, Irrep: scalar}}
	in2 := irreps.Irreps{{Mul: 3, Irrep: scalar}}
	_, err := ElementwiseTensorProduct(in1, in2, ScalarCouplings{}, nil)
	require.Error(t, err)
	require.True(t, irreps.IsShapeError(err))
}

func TestElementwiseAlignsMultiplicities(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	// 4 instances each, split differently: alignment produces entries
	// (2,1,1) vs (2,2) refined to (2,1,1).
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 2, Irrep: vector}}
	in2 := irreps.Irreps{{Mul: 2, Irrep: vector}, {Mul: 1, Irrep: scalar}, {Mul: 1, Irrep: scalar}}
	d, err := ElementwiseTensorProduct(in1, in2, deltaCouplings{}, nil)
	require.NoError(t, err)

	// Pairs: (2x0e, 2x1o) -> 1o, (1x1o, 1x0e) -> 1o, (1x1o, 1x0e) -> 1o.
	require.Equal(t, 3, d.NumPaths())
	require.Equal(t, in1.Dim(), d.Operand(0).Size())
	require.Equal(t, in2.Dim(), d.Operand(1).Size())
	require.Equal(t, 4*3, d.Operand(2).Size())
}

func TestElementwiseFilter(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 2, Irrep: vector}}
	in2 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 2, Irrep: vector}}
	d, err := ElementwiseTensorProduct(in1, in2, deltaCouplings{}, []irreps.Irrep{scalar})
	require.NoError(t, err)
	// Only the scalar*scalar pair survives the filter.
	require.Equal(t, 1, d.NumPaths())
	require.Equal(t, 2, d.Operand(2).Size())
}

func TestFullTensorProduct(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 3, Irrep: vector}}
	in2 := irreps.Irreps{{Mul: 5, Irrep: scalar}}
	d, err := FullTensorProduct(in1, in2, deltaCouplings{}, nil)
	require.NoError(t, err)

	require.Equal(t, "u,v,uv", d.Subscripts())
	// Each (input1, input2) segment pair couples once.
	require.Equal(t, 2, d.NumPaths())
	// Output multiplicities are products: 2*5 scalars and 3*5 vectors.
	require.Equal(t, 2*5*1+3*5*3, d.Operand(2).Size())
}

func TestChannelwiseTensorProduct(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 3, Irrep: vector}}
	in2 := irreps.Irreps{{Mul: 5, Irrep: scalar}}
	d, err := ChannelwiseTensorProduct(in1, in2, deltaCouplings{}, nil)
	require.NoError(t, err)

	require.Equal(t, 4, d.NumOperands())
	require.Equal(t, "uv,u,v,uv", d.Subscripts())
	// Each (input1, input2) segment pair couples once.
	require.Equal(t, 2, d.NumPaths())
	// One weight per channel pair: shape (mul1, mul2), not (mul1, mul2, mul3).
	require.Equal(t, 2*5+3*5, d.Operand(0).Size())
	// Output multiplicities are products: 2*5 scalars and 3*5 vectors.
	require.Equal(t, 2*5*1+3*5*3, d.Operand(3).Size())
}

func TestChannelwiseFilter(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}, {Mul: 3, Irrep: vector}}
	in2 := irreps.Irreps{{Mul: 5, Irrep: scalar}}
	d, err := ChannelwiseTensorProduct(in1, in2, deltaCouplings{}, []irreps.Irrep{vector})
	require.NoError(t, err)
	// Only the (1o, 0e) -> 1o pair survives the filter.
	require.Equal(t, 1, d.NumPaths())
	require.Equal(t, 3*5, d.Operand(0).Size())
	require.Equal(t, 3*5*3, d.Operand(3).Size())
}

func TestFullyConnectedTensorProduct(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in1 := irreps.Irreps{{Mul: 2, Irrep: scalar}}
	in2 := irreps.Irreps{{Mul: 3, Irrep: scalar}, {Mul: 4, Irrep: vector}}
	out := irreps.Irreps{{Mul: 5, Irrep: scalar}, {Mul: 6, Irrep: vector}}
	d, err := FullyConnectedTensorProduct(in1, in2, out, deltaCouplings{})
	require.NoError(t, err)

	require.Equal(t, 4, d.NumOperands())
	require.Equal(t, "uvw,u,v,w", d.Subscripts())
	// Admissible triples: (0e, 0e, 0e) and (0e, 1o, 1o).
	require.Equal(t, 2, d.NumPaths())
	// Weight segments have shape (mul1, mul2, mul3).
	require.Equal(t, 2*3*5+2*4*6, d.Operand(0).Size())
}

func TestOperandIrreps(t *testing.T) {
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	in := irreps.Irreps{{Mul: 16, Irrep: scalar}, {Mul: 8, Irrep: vector}}
	out := irreps.Irreps{{Mul: 4, Irrep: scalar}}
	d, err := Linear(in, out)
	require.NoError(t, err)

	require.Equal(t, in, OperandIrreps(d, 1))
	require.Equal(t, out, OperandIrreps(d, 2))
}

func TestScalarCouplings(t *testing.T) {
	c := ScalarCouplings{}
	scalar := irreps.New("0", 1)
	vector := irreps.New("1", 3)

	require.Equal(t, []irreps.Irrep{scalar}, c.Decompose(scalar, scalar))
	require.Nil(t, c.Decompose(scalar, vector))
	require.Len(t, c.ClebschGordan(scalar, scalar, scalar), 1)
	require.Nil(t, c.ClebschGordan(scalar, vector, vector))

	named := ScalarCouplings{Label: "even"}
	require.Equal(t, []irreps.Irrep{irreps.New("even", 1)}, named.Decompose(scalar, scalar))
}
