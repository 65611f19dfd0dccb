package stp

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
)

// Hash is the structural content digest of a descriptor, used as the plan
// cache key and for equivalence testing.
type Hash [sha256.Size]byte

// String returns the hash in hexadecimal.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// StructuralHash returns a stable, deterministic digest of the descriptor's
// canonical content: operand subscripts and segment layouts plus the pruned,
// consolidated path table. Two descriptors with equal hashes compute
// identical functions, which is the invariant the plan cache depends on:
// segment order is already canonical by construction, and zero paths and
// proportional duplicates are erased before digesting.
func (d *SegmentedTensorProduct) StructuralHash() Hash {
	canonical := d.Canonicalize()
	h := sha256.New()
	writeInt := func(v int) {
		_ = binary.Write(h, binary.LittleEndian, int64(v))
	}
	writeString := func(s string) {
		writeInt(len(s))
		_, _ = io.WriteString(h, s)
	}

	writeInt(canonical.NumOperands())
	for _, op := range canonical.operands {
		writeString(op.modes)
		writeInt(len(op.segments))
		for _, s := range op.segments {
			writeString(s.Irrep.Label)
			writeInt(s.Irrep.Dim)
			writeInt(len(s.Dims))
			for _, dim := range s.Dims {
				writeInt(dim)
			}
		}
	}
	writeInt(len(canonical.paths))
	for _, p := range canonical.paths {
		for _, idx := range p.Indices {
			writeInt(idx)
		}
		_ = binary.Write(h, binary.LittleEndian, math.Float64bits(p.Weight))
		p.Coefficients.writeHash(h)
	}

	var digest Hash
	copy(digest[:], h.Sum(nil))
	return digest
}
