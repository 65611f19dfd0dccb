package stp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiamZhang100/cuEquivariance/irreps"
	"github.com/LiamZhang100/cuEquivariance/stp"
)

func TestPermuteOperands(t *testing.T) {
	d := dotDescriptor(t, 1)

	swapped, err := d.PermuteOperands(1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 3, swapped.NumOperands())
	// The delta coefficients are symmetric under the swap, so the descriptors
	// stay structurally equal.
	require.Equal(t, d.StructuralHash(), swapped.StructuralHash())

	// Round trip through a rotation restores the original.
	rotated, err := d.PermuteOperands(2, 0, 1)
	require.NoError(t, err)
	back, err := rotated.PermuteOperands(1, 2, 0)
	require.NoError(t, err)
	require.True(t, d.Equal(back))

	_, err = d.PermuteOperands(0, 0, 1)
	require.True(t, irreps.IsShapeError(err))
	_, err = d.PermuteOperands(0, 1)
	require.True(t, irreps.IsShapeError(err))
}

func TestPermuteOperandsAsymmetric(t *testing.T) {
	b, err := stp.NewBuilder("", "", "")
	require.NoError(t, err)
	_, err = b.AddSegment(0, irreps.MakeSegment(irreps.New("a", 2)))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(irreps.New("b", 3)))
	require.NoError(t, err)
	_, err = b.AddSegment(2, irreps.MakeSegment(irreps.New("c", 4)))
	require.NoError(t, err)
	c := stp.NewCoefficients([]int{2, 3, 4}, func() []float64 {
		data := make([]float64, 24)
		for i := range data {
			data[i] = float64(i)
		}
		return data
	}())
	require.NoError(t, b.AddPath(1, c, 0, 0, 0))
	d, err := b.Build()
	require.NoError(t, err)

	swapped, err := d.PermuteOperands(1, 0, 2)
	require.NoError(t, err)
	require.Equal(t, "b(3)", swapped.Operand(0).Segment(0).Irrep.String())
	// Coefficient axes follow the operands.
	require.Equal(t, []int{3, 2, 4}, swapped.Path(0).Coefficients.Shape)
	require.Equal(t, d.Path(0).Coefficients.At(1, 2, 3), swapped.Path(0).Coefficients.At(2, 1, 3))
}

func TestPruneZeroPaths(t *testing.T) {
	b, err := stp.NewBuilder("", "", "")
	require.NoError(t, err)
	for op := 0; op < 3; op++ {
		_, err = b.AddSegment(op, irreps.MakeSegment(irreps.New("0e", 1)))
		require.NoError(t, err)
		_, err = b.AddSegment(op, irreps.MakeSegment(irreps.New("0e", 1)))
		require.NoError(t, err)
	}
	one := stp.NewCoefficients([]int{1, 1, 1}, []float64{1})
	zero := stp.NewCoefficients([]int{1, 1, 1}, []float64{0})
	require.NoError(t, b.AddPath(1, one, 0, 0, 0))
	require.NoError(t, b.AddPath(0, one, 1, 0, 0)) // Zero weight.
	require.NoError(t, b.AddPath(1, zero, 0, 1, 0)) // Zero coefficients.
	d, err := b.Build()
	require.NoError(t, err)

	pruned := d.PruneZeroPaths()
	require.Equal(t, 1, pruned.NumPaths())
	require.Equal(t, []int{0, 0, 0}, pruned.Path(0).Indices)
	// Pruning changes cost, not the operands.
	require.True(t, d.Operand(0).Equal(pruned.Operand(0)))
}

func TestSqueezeModes(t *testing.T) {
	b, err := stp.NewBuilder("uv", "v", "uv")
	require.NoError(t, err)
	// Mode "u" is 1 on every segment; "v" is not.
	_, err = b.AddSegment(0, irreps.MakeSegment(irreps.New("0e", 1), 1, 4))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(irreps.New("1o", 3), 4))
	require.NoError(t, err)
	_, err = b.AddSegment(2, irreps.MakeSegment(irreps.New("1o", 3), 1, 4))
	require.NoError(t, err)
	c := stp.NewCoefficients([]int{1, 3, 3}, stp.Identity(3).Data)
	require.NoError(t, b.AddPath(1, c, 0, 0, 0))
	d, err := b.Build()
	require.NoError(t, err)

	squeezed := d.SqueezeModes()
	require.Equal(t, "v,v,v", squeezed.Subscripts())
	require.Equal(t, []int{4, 1}, squeezed.Operand(0).Segment(0).Shape())
	require.Equal(t, []int{4, 3}, squeezed.Operand(2).Segment(0).Shape())
	// Flat layout is untouched.
	require.Equal(t, d.OperandSizes(), squeezed.OperandSizes())
	require.Equal(t, d.NumPaths(), squeezed.NumPaths())
	// Idempotent.
	require.True(t, squeezed.Equal(squeezed.SqueezeModes()))
}

func TestMergeSegments(t *testing.T) {
	// Weights operand "w" is private to the path's summation, with two
	// adjacent identical segments carrying identical paths: they merge.
	b, err := stp.NewBuilder("w", "", "")
	require.NoError(t, err)
	scalar := irreps.New("0e", 1)
	_, err = b.AddSegment(0, irreps.MakeSegment(scalar, 4))
	require.NoError(t, err)
	_, err = b.AddSegment(0, irreps.MakeSegment(scalar, 4))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(irreps.New("1o", 3)))
	require.NoError(t, err)
	_, err = b.AddSegment(2, irreps.MakeSegment(irreps.New("1o", 3)))
	require.NoError(t, err)
	require.NoError(t, b.AddPath(1, stp.NewCoefficients([]int{1, 3, 3}, stp.Identity(3).Data), 0, 0, 0))
	require.NoError(t, b.AddPath(1, stp.NewCoefficients([]int{1, 3, 3}, stp.Identity(3).Data), 1, 0, 0))
	d, err := b.Build()
	require.NoError(t, err)

	merged := d.MergeSegments()
	require.Equal(t, 1, merged.Operand(0).NumSegments())
	require.Equal(t, []int{8, 1}, merged.Operand(0).Segment(0).Shape())
	require.Equal(t, 1, merged.NumPaths())
	// Total operand size is preserved.
	require.Equal(t, d.Operand(0).Size(), merged.Operand(0).Size())
}

func TestMergeSegmentsKeepsDistinguishedSegments(t *testing.T) {
	b, err := stp.NewBuilder("w", "", "")
	require.NoError(t, err)
	scalar := irreps.New("0e", 1)
	_, err = b.AddSegment(0, irreps.MakeSegment(scalar, 4))
	require.NoError(t, err)
	_, err = b.AddSegment(0, irreps.MakeSegment(scalar, 4))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(irreps.New("1o", 3)))
	require.NoError(t, err)
	_, err = b.AddSegment(2, irreps.MakeSegment(irreps.New("1o", 3)))
	require.NoError(t, err)
	// Different weights distinguish the two segments.
	require.NoError(t, b.AddPath(1, stp.NewCoefficients([]int{1, 3, 3}, stp.Identity(3).Data), 0, 0, 0))
	require.NoError(t, b.AddPath(2, stp.NewCoefficients([]int{1, 3, 3}, stp.Identity(3).Data), 1, 0, 0))
	d, err := b.Build()
	require.NoError(t, err)

	merged := d.MergeSegments()
	require.Equal(t, 2, merged.Operand(0).NumSegments())
	require.Equal(t, 2, merged.NumPaths())
}

func TestNormalizePathsForOperand(t *testing.T) {
	d := dotDescriptor(t, 2)
	normalized, err := d.NormalizePathsForOperand(-1)
	require.NoError(t, err)
	// Single path feeding the output segment: weight^2 * |c|^2 becomes 1.
	p := normalized.Path(0)
	norm := p.Coefficients.Norm()
	require.InDelta(t, 1.0, p.Weight*p.Weight*norm*norm, 1e-12)

	_, err = d.NormalizePathsForOperand(7)
	require.True(t, irreps.IsShapeError(err))
}

func TestScale(t *testing.T) {
	d := dotDescriptor(t, 1)
	doubled := d.Scale(2)
	require.Equal(t, 2.0, doubled.Path(0).Weight)
	require.Equal(t, 1.0, d.Path(0).Weight)
}

func TestSortSegments(t *testing.T) {
	b, err := stp.NewBuilder("", "")
	require.NoError(t, err)
	scalar := irreps.New("0e", 1)
	vector := irreps.New("1o", 3)
	// Canonical order puts the scalar first, so build with it second.
	v, err := b.AddSegment(0, irreps.MakeSegment(vector))
	require.NoError(t, err)
	s, err := b.AddSegment(0, irreps.MakeSegment(scalar))
	require.NoError(t, err)
	_, err = b.AddSegment(1, irreps.MakeSegment(vector))
	require.NoError(t, err)
	require.NoError(t, b.AddPath(1, stp.Identity(3), v, 0))
	require.NoError(t, b.AddPath(1, stp.NewCoefficients([]int{1, 3}, []float64{1, 0, 0}), s, 0))
	d, err := b.Build()
	require.NoError(t, err)

	// Build already canonicalizes, so SortSegments is a fixed point; the
	// scalar segment ends up first regardless of insertion order.
	require.Equal(t, "0e(1)", d.Operand(0).Segment(0).String())
	require.True(t, d.Equal(d.SortSegments()))
	require.Equal(t, d.StructuralHash(), d.SortSegments().StructuralHash())
}

func TestRemoveEmptySegments(t *testing.T) {
	b, err := stp.NewBuilder("", "")
	require.NoError(t, err)
	vector := irreps.New("1o", 3)
	for i := 0; i < 3; i++ {
		_, err = b.AddSegment(0, irreps.MakeSegment(vector))
		require.NoError(t, err)
	}
	_, err = b.AddSegment(1, irreps.MakeSegment(vector))
	require.NoError(t, err)
	require.NoError(t, b.AddPath(1, stp.Identity(3), 1, 0))
	d, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 9, d.Operand(0).Size())

	trimmed := d.RemoveEmptySegments()
	require.Equal(t, 1, trimmed.Operand(0).NumSegments())
	require.Equal(t, 3, trimmed.Operand(0).Size())
	require.Equal(t, 1, trimmed.NumPaths())
	require.Equal(t, []int{0, 0}, trimmed.Path(0).Indices)
	// Untouched operands keep their segments.
	require.Equal(t, 1, trimmed.Operand(1).NumSegments())
}
