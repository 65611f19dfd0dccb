package planner

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/LiamZhang100/cuEquivariance/stp"
)

// CacheKey identifies one compiled plan: the descriptor's structural hash
// plus the constraints it was compiled under. Descriptors with equal
// structural hashes compute identical functions, so any plan stored under a
// key is valid for every descriptor producing that key.
type CacheKey string

// PlanCacheKey builds the cache key for a descriptor hash and constraints.
func PlanCacheKey(hash stp.Hash, constraints Constraints) CacheKey {
	return CacheKey(hash.String() + "|" + constraints.normalized().key())
}

// Cache is an injectable plan cache. Implementations must support concurrent
// lookups and insertions; last-writer-wins on concurrent Put of the same key
// is acceptable, since all producers of a given key are equivalent by the
// structural-hash invariant.
type Cache interface {
	Get(key CacheKey) (*Plan, bool)
	Put(key CacheKey, plan *Plan)
}

// MemoryCache is an in-process Cache backed by a map.
type MemoryCache struct {
	mu    sync.RWMutex
	plans map[CacheKey]*Plan
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{plans: make(map[CacheKey]*Plan)}
}

// Get implements Cache.
func (c *MemoryCache) Get(key CacheKey) (*Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	plan, ok := c.plans[key]
	return plan, ok
}

// Put implements Cache.
func (c *MemoryCache) Put(key CacheKey, plan *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[key] = plan
}

// Len returns the number of cached plans.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.plans)
}

// NopCache never stores anything: every lookup is a miss. For callers that
// need no caching.
type NopCache struct{}

// Get implements Cache.
func (NopCache) Get(CacheKey) (*Plan, bool) { return nil, false }

// Put implements Cache.
func (NopCache) Put(CacheKey, *Plan) {}

// Compiler compiles descriptors through a plan cache, making sure a plan is
// computed at most once per distinct key even under concurrent access.
type Compiler struct {
	cache Cache
	group singleflight.Group
}

// NewCompiler creates a Compiler over the given cache. A nil cache disables
// caching.
func NewCompiler(cache Cache) *Compiler {
	if cache == nil {
		cache = NopCache{}
	}
	return &Compiler{cache: cache}
}

// Compile returns the plan for the descriptor, compiling and caching it on a
// miss. A cache miss is normal control flow, not an error. Concurrent calls
// for the same key share a single compilation.
func (c *Compiler) Compile(d *stp.SegmentedTensorProduct, constraints Constraints) (*Plan, error) {
	key := PlanCacheKey(d.StructuralHash(), constraints)
	if plan, ok := c.cache.Get(key); ok {
		return plan, nil
	}
	result, err, _ := c.group.Do(string(key), func() (any, error) {
		if plan, ok := c.cache.Get(key); ok {
			return plan, nil
		}
		plan, err := Compile(d, constraints)
		if err != nil {
			return nil, err
		}
		c.cache.Put(key, plan)
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Plan), nil
}
