package stp

import (
	"strings"

	"github.com/LiamZhang100/cuEquivariance/irreps"
)

// Compose fuses two descriptors: the output of a is fed into operand
// sharedOperandOfB of b, without ever materializing the intermediate tensor.
// The shared operand of b must have the same segment list (irreps and mode
// dimensions, letters aside) as a's output.
//
// The result's operands are, in order: a's inputs, b's inputs except the
// shared one, b's output. For every pair of paths referencing a common
// segment on the shared operand, the fused path contracts the two coefficient
// arrays along the shared irrep axis and multiplies the weights.
//
// Candidate pairs are found through a per-segment index of b's paths, so the
// cost is proportional to the number of matching pairs rather than
// |paths(a)| x |paths(b)|; deep chains of compositions stay feasible to
// build.
func Compose(a, b *SegmentedTensorProduct, sharedOperandOfB int) (*SegmentedTensorProduct, error) {
	if sharedOperandOfB < 0 || sharedOperandOfB >= b.NumInputs() {
		return nil, irreps.Shapef("shared operand index %d must name an input of the second descriptor (%d inputs)",
			sharedOperandOfB, b.NumInputs())
	}
	aOut := a.Output()
	shared := b.Operand(sharedOperandOfB)
	if err := checkComposable(aOut, shared); err != nil {
		return nil, err
	}

	bModes, err := relabelForCompose(a, b, sharedOperandOfB)
	if err != nil {
		return nil, err
	}

	// Result operand list: a's inputs, b's inputs except shared, b's output.
	operands := make([]*Operand, 0, a.NumInputs()+b.NumOperands()-1)
	operands = append(operands, a.operands[:a.NumInputs()]...)
	for opIdx, op := range b.operands {
		if opIdx == sharedOperandOfB {
			continue
		}
		operands = append(operands, &Operand{modes: bModes[opIdx], segments: op.segments})
	}

	// Index b's paths by their segment on the shared operand.
	bBySegment := make(map[int][]Path)
	for _, pb := range b.paths {
		segIdx := pb.Indices[sharedOperandOfB]
		bBySegment[segIdx] = append(bBySegment[segIdx], pb)
	}

	sharedAxis := sharedOperandOfB
	var paths []Path
	for _, pa := range a.paths {
		segIdx := pa.Indices[a.NumInputs()]
		for _, pb := range bBySegment[segIdx] {
			coefficients, err := pa.Coefficients.Contract(a.NumInputs(), pb.Coefficients, sharedAxis)
			if err != nil {
				return nil, err
			}
			indices := make([]int, 0, len(operands))
			indices = append(indices, pa.Indices[:a.NumInputs()]...)
			for opIdx, idx := range pb.Indices {
				if opIdx != sharedOperandOfB {
					indices = append(indices, idx)
				}
			}
			paths = append(paths, Path{
				Indices:      indices,
				Coefficients: coefficients,
				Weight:       pa.Weight * pb.Weight,
			})
		}
	}
	return newDescriptor(operands, paths).ConsolidatePaths(), nil
}

// checkComposable verifies the shared operand of b matches a's output
// segment by segment. Mode letters may differ, dimensions may not.
func checkComposable(aOut, shared *Operand) error {
	if len(aOut.modes) != len(shared.modes) {
		return irreps.Shapef("cannot compose: output has %d mode axes, shared operand has %d",
			len(aOut.modes), len(shared.modes))
	}
	if aOut.NumSegments() != shared.NumSegments() {
		return irreps.Shapef("cannot compose: output has %d segments, shared operand has %d",
			aOut.NumSegments(), shared.NumSegments())
	}
	for i, s := range aOut.segments {
		if !s.Equal(shared.segments[i]) {
			return irreps.Shapef("cannot compose: segment #%d differs, %s vs %s", i, s, shared.segments[i])
		}
	}
	return nil
}

// relabelForCompose rewrites b's mode subscripts for the fused descriptor:
// the shared operand's letters become a's output letters (identifying the
// fused axes), and any other letter of b colliding with a letter of a is
// renamed to a fresh one. Returns the new subscripts per b operand.
func relabelForCompose(a, b *SegmentedTensorProduct, sharedOperandOfB int) ([]string, error) {
	aOutModes := a.Output().modes
	sharedModes := b.operands[sharedOperandOfB].modes

	rename := make(map[rune]rune)
	for i, r := range sharedModes {
		rename[r] = rune(aOutModes[i])
	}

	used := make(map[rune]bool)
	for _, op := range a.operands {
		for _, r := range op.modes {
			used[r] = true
		}
	}
	for _, r := range sharedModes {
		used[rename[r]] = true
	}

	fresh := func() (rune, error) {
		for r := 'a'; r <= 'z'; r++ {
			if !used[r] {
				used[r] = true
				return r, nil
			}
		}
		return 0, irreps.Shapef("cannot compose: ran out of mode letters")
	}

	bModes := make([]string, len(b.operands))
	for opIdx, op := range b.operands {
		var sb strings.Builder
		for _, r := range op.modes {
			if mapped, ok := rename[r]; ok {
				sb.WriteRune(mapped)
				continue
			}
			if used[r] {
				newR, err := fresh()
				if err != nil {
					return nil, err
				}
				rename[r] = newR
				sb.WriteRune(newR)
				continue
			}
			used[r] = true
			rename[r] = r
			sb.WriteRune(r)
		}
		bModes[opIdx] = sb.String()
	}
	return bModes, nil
}
