package irreps

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// MulIrrep is one entry of an Irreps list: an irrep with a multiplicity.
type MulIrrep struct {
	Mul   int
	Irrep Irrep
}

// Irreps is an ordered list of irreps with multiplicities, describing the
// typed layout of one operand.
type Irreps []MulIrrep

// Dim returns the total flattened dimension: sum of mul*dim over the entries.
func (irs Irreps) Dim() int {
	total := 0
	for _, mi := range irs {
		total += mi.Mul * mi.Irrep.Dim
	}
	return total
}

// NumIrreps returns the total number of irrep instances: the sum of the
// multiplicities.
func (irs Irreps) NumIrreps() int {
	total := 0
	for _, mi := range irs {
		total += mi.Mul
	}
	return total
}

// Sorted returns a copy of the list sorted by the canonical irrep order,
// together with the inverse permutation: inv[i] is the new position of the
// entry originally at position i. The sort is stable, so equal irreps keep
// their relative order.
func (irs Irreps) Sorted() (sorted Irreps, inv []int) {
	order := make([]int, len(irs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return irs[order[a]].Irrep.Compare(irs[order[b]].Irrep) < 0
	})
	sorted = make(Irreps, len(irs))
	inv = make([]int, len(irs))
	for newPos, oldPos := range order {
		sorted[newPos] = irs[oldPos]
		inv[oldPos] = newPos
	}
	return sorted, inv
}

// Repeat returns the list with every multiplicity multiplied by n.
func (irs Irreps) Repeat(n int) Irreps {
	out := slices.Clone(irs)
	for i := range out {
		out[i].Mul *= n
	}
	return out
}

// Segments converts the list to one Segment per entry, with the multiplicity
// as the single mode dimension.
func (irs Irreps) Segments() []Segment {
	segments := make([]Segment, len(irs))
	for i, mi := range irs {
		segments[i] = MakeSegment(mi.Irrep, mi.Mul)
	}
	return segments
}

// Parse reads back the textual form produced by Irreps.String: plus-separated
// entries "MULxLABEL(DIM)", e.g. "16x0e(1)+8x1o(3)". The "MULx" prefix is
// optional and defaults to multiplicity 1.
func Parse(text string) (Irreps, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var out Irreps
	for _, entry := range strings.Split(text, "+") {
		entry = strings.TrimSpace(entry)
		open := strings.LastIndexByte(entry, '(')
		if open < 0 || !strings.HasSuffix(entry, ")") {
			return nil, Shapef("cannot parse irreps entry %q, want \"MULxLABEL(DIM)\"", entry)
		}
		dim, err := strconv.Atoi(entry[open+1 : len(entry)-1])
		if err != nil {
			return nil, Shapef("cannot parse dimension of irreps entry %q: %v", entry, err)
		}
		mul := 1
		label := entry[:open]
		if x := strings.IndexByte(label, 'x'); x > 0 {
			if m, err := strconv.Atoi(label[:x]); err == nil {
				mul, label = m, label[x+1:]
			}
		}
		if mul <= 0 {
			return nil, Shapef("irreps entry %q has multiplicity %d, must be >= 1", entry, mul)
		}
		ir, err := NewOrError(label, dim)
		if err != nil {
			return nil, err
		}
		out = append(out, MulIrrep{Mul: mul, Irrep: ir})
	}
	return out, nil
}

// String implements fmt.Stringer, e.g. "16x0e(1)+16x1o(3)".
func (irs Irreps) String() string {
	parts := make([]string, len(irs))
	for i, mi := range irs {
		parts[i] = MakeSegment(mi.Irrep, mi.Mul).String()
	}
	return strings.Join(parts, "+")
}
