package stp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiamZhang100/cuEquivariance/irreps"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

// identityDescriptor builds the 2-operand identity coupling on a single
// dim-dim segment: output = weight * input.
func identityDescriptor(t *testing.T, dim int, weight float64) *stp.SegmentedTensorProduct {
	b, err := stp.NewBuilder("", "")
	require.NoError(t, err)
	ir := irreps.New("v", dim)
	_, err = b.AddSegment(0, irreps.MakeSegment(ir))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(ir))
	require.NoError(t, err)
	require.NoError(t, b.AddPath(weight, stp.Identity(dim), 0, 0))
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

// dotDescriptorWithIr is dotDescriptor with the operand irreps made explicit
// so it can compose with identityDescriptor.
func dotDescriptorOn(t *testing.T, ir irreps.Irrep) *stp.SegmentedTensorProduct {
	b, err := stp.NewBuilder("", "", "")
	require.NoError(t, err)
	_, err = b.AddSegment(0, irreps.MakeSegment(ir))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(ir))
	require.NoError(t, err)
	_, err = b.AddSegment(2, irreps.MakeSegment(irreps.New("0e", 1)))
	require.NoError(t, err)
	dim := ir.Dim
	data := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		data[i*dim+i] = 1
	}
	require.NoError(t, b.AddPath(1, stp.NewCoefficients([]int{dim, dim, 1}, data), 0, 0, 0))
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func TestComposeIdentityIntoDot(t *testing.T) {
	ir := irreps.New("v", 3)
	a := identityDescriptor(t, 3, 1)
	dot := dotDescriptorOn(t, ir)

	// Feeding the identity into either input of the dot gives back the dot.
	for shared := 0; shared < 2; shared++ {
		fused, err := stp.Compose(a, dot, shared)
		require.NoError(t, err)
		require.Equal(t, 3, fused.NumOperands())
		require.Equal(t, 1, fused.NumPaths())
		require.Equal(t, dot.StructuralHash(), fused.StructuralHash(), "shared=%d", shared)
	}
}

func TestComposeWeightsMultiply(t *testing.T) {
	a := identityDescriptor(t, 4, 2)
	b := identityDescriptor(t, 4, 3)
	fused, err := stp.Compose(a, b, 0)
	require.NoError(t, err)
	require.Equal(t, 1, fused.NumPaths())
	require.Equal(t, 6.0, fused.Path(0).Weight)
	require.Equal(t, 2, fused.NumOperands())
	// Identity contracted with identity is the identity.
	require.True(t, fused.Path(0).Coefficients.Equal(stp.Identity(4)))
}

func TestComposeMatchesOnSharedSegmentsOnly(t *testing.T) {
	// a produces two output segments; b consumes them. Only path pairs that
	// meet on the same shared segment fuse.
	buildA := func() *stp.SegmentedTensorProduct {
		b, err := stp.NewBuilder("", "")
		require.NoError(t, err)
		ir := irreps.New("v", 2)
		_, err = b.AddSegment(0, irreps.MakeSegment(ir))
		require.NoError(t, err)
		_, err = b.AddSegment(1, irreps.MakeSegment(ir))
		require.NoError(t, err)
		_, err = b.AddSegment(1, irreps.MakeSegment(ir))
		require.NoError(t, err)
		require.NoError(t, b.AddPath(1, stp.Identity(2), 0, 0))
		require.NoError(t, b.AddPath(5, stp.Identity(2), 0, 1))
		d, err := b.Build()
		require.NoError(t, err)
		return d
	}
	buildB := func() *stp.SegmentedTensorProduct {
		b, err := stp.NewBuilder("", "")
		require.NoError(t, err)
		ir := irreps.New("v", 2)
		_, err = b.AddSegment(0, irreps.MakeSegment(ir))
		require.NoError(t, err)
		_, err = b.AddSegment(0, irreps.MakeSegment(ir))
		require.NoError(t, err)
		_, err = b.AddSegment(1, irreps.MakeSegment(ir))
		require.NoError(t, err)
		require.NoError(t, b.AddPath(1, stp.Identity(2), 0, 0))
		d, err := b.Build()
		require.NoError(t, err)
		return d
	}
	a, b := buildA(), buildB()
	fused, err := stp.Compose(a, b, 0)
	require.NoError(t, err)
	// b only reads shared segment 0, so a's path into segment 1 produces no
	// fused path.
	require.Equal(t, 1, fused.NumPaths())
	require.Equal(t, 1.0, fused.Path(0).Weight)
}

func TestComposeRejectsMismatchedOperands(t *testing.T) {
	a := identityDescriptor(t, 3, 1)
	b := identityDescriptor(t, 4, 1)
	_, err := stp.Compose(a, b, 0)
	require.True(t, irreps.IsShapeError(err))

	_, err = stp.Compose(a, b, 1) // Output is not an input.
	require.True(t, irreps.IsShapeError(err))
	_, err = stp.Compose(a, b, -1)
	require.True(t, irreps.IsShapeError(err))
}

func TestComposeRelabelsModes(t *testing.T) {
	// a: channelwise identity with modes "u"; b: channelwise identity whose
	// own letter collides with a's.
	build := func() *stp.SegmentedTensorProduct {
		b, err := stp.NewBuilder("u", "u")
		require.NoError(t, err)
		ir := irreps.New("v", 3)
		_, err = b.AddSegment(0, irreps.MakeSegment(ir, 4))
		require.NoError(t, err)
		_, err = b.AddSegment(1, irreps.MakeSegment(ir, 4))
		require.NoError(t, err)
		require.NoError(t, b.AddPath(1, stp.Identity(3), 0, 0))
		d, err := b.Build()
		require.NoError(t, err)
		return d
	}
	a, b := build(), build()
	fused, err := stp.Compose(a, b, 0)
	require.NoError(t, err)
	require.Equal(t, 2, fused.NumOperands())
	// The shared mode is identified: both remaining operands carry the same
	// letter.
	require.Equal(t, fused.Operand(0).Modes(), fused.Operand(1).Modes())
	// And the fusion is the identity again.
	require.Equal(t, a.StructuralHash(), fused.StructuralHash())
}
