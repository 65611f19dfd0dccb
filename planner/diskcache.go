package planner

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/LiamZhang100/cuEquivariance/stp"
)

// DiskCache persists plans across process runs as gob-encoded files, one per
// cache key, under a directory. Every entry carries PlanFormatVersion; a
// mismatch on load discards the entry and reports a miss, so stale plans are
// never silently reused.
//
// Cache I/O errors are never fatal: they are logged and degrade to a miss
// (on Get) or a dropped insertion (on Put).
type DiskCache struct {
	dir string
}

// NewDiskCache creates a DiskCache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// planWire is the persisted encoding of a Plan.
type planWire struct {
	FormatVersion int
	Hash          stp.Hash
	Constraints   Constraints
	OperandModes  []string
	OperandSizes  []int
	Groups        []Group
}

func (c *DiskCache) path(key CacheKey) string {
	return filepath.Join(c.dir, string(key)+".plan")
}

// Get implements Cache.
func (c *DiskCache) Get(key CacheKey) (*Plan, bool) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	var wire planWire
	if err = gob.NewDecoder(f).Decode(&wire); err != nil {
		klog.Warningf("planner.DiskCache: dropping undecodable entry %q: %v", key, err)
		c.invalidate(key)
		return nil, false
	}
	if wire.FormatVersion != PlanFormatVersion {
		klog.Warningf("planner.DiskCache: entry %q has format version %d, want %d; invalidating",
			key, wire.FormatVersion, PlanFormatVersion)
		c.invalidate(key)
		return nil, false
	}
	return &Plan{
		formatVersion: wire.FormatVersion,
		hash:          wire.Hash,
		constraints:   wire.Constraints,
		operandModes:  wire.OperandModes,
		operandSizes:  wire.OperandSizes,
		groups:        wire.Groups,
	}, true
}

// Put implements Cache. The entry is written to a temporary file and renamed
// into place, so concurrent readers only ever see complete entries.
func (c *DiskCache) Put(key CacheKey, plan *Plan) {
	tmp, err := os.CreateTemp(c.dir, "plan-*")
	if err != nil {
		klog.Warningf("planner.DiskCache: cannot create entry for %q: %v", key, err)
		return
	}
	wire := planWire{
		FormatVersion: PlanFormatVersion,
		Hash:          plan.hash,
		Constraints:   plan.constraints,
		OperandModes:  plan.operandModes,
		OperandSizes:  plan.operandSizes,
		Groups:        plan.groups,
	}
	err = gob.NewEncoder(tmp).Encode(&wire)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), c.path(key))
	}
	if err != nil {
		klog.Warningf("planner.DiskCache: cannot persist entry for %q: %v", key, err)
		_ = os.Remove(tmp.Name())
	}
}

func (c *DiskCache) invalidate(key CacheKey) {
	_ = os.Remove(c.path(key))
}
