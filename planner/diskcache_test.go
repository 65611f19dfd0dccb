package planner

import (
	"encoding/gob"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiskCacheRoundTrip(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)

	d := linearLikeDescriptor(t)
	plan, err := Compile(d, Constraints{})
	require.NoError(t, err)
	key := PlanCacheKey(d.StructuralHash(), plan.Constraints())

	_, ok := cache.Get(key)
	require.False(t, ok)

	cache.Put(key, plan)
	loaded, ok := cache.Get(key)
	require.True(t, ok)
	require.Equal(t, plan.DescriptorHash(), loaded.DescriptorHash())
	require.Equal(t, plan.Constraints(), loaded.Constraints())
	require.Equal(t, plan.OperandModes(), loaded.OperandModes())
	require.Equal(t, plan.OperandSizes(), loaded.OperandSizes())
	require.Equal(t, plan.NumGroups(), loaded.NumGroups())
	for i, g := range plan.Groups() {
		require.Equal(t, g, loaded.groups[i])
	}
}

func TestDiskCacheInvalidatesOnFormatVersion(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	key := CacheKey("deadbeef|Float64")

	// Plant an entry from a hypothetical older release.
	f, err := os.Create(cache.path(key))
	require.NoError(t, err)
	wire := planWire{FormatVersion: PlanFormatVersion + 1}
	require.NoError(t, gob.NewEncoder(f).Encode(&wire))
	require.NoError(t, f.Close())

	_, ok := cache.Get(key)
	require.False(t, ok)
	// The stale entry is gone, not retried on every lookup.
	_, err = os.Stat(cache.path(key))
	require.True(t, os.IsNotExist(err))
}

func TestDiskCacheInvalidatesOnCorruption(t *testing.T) {
	cache, err := NewDiskCache(t.TempDir())
	require.NoError(t, err)
	key := CacheKey("deadbeef|Float64")
	require.NoError(t, os.WriteFile(cache.path(key), []byte("not a gob stream"), 0o644))

	_, ok := cache.Get(key)
	require.False(t, ok)
	_, err = os.Stat(cache.path(key))
	require.True(t, os.IsNotExist(err))
}

func TestDiskCacheThroughCompiler(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewDiskCache(dir)
	require.NoError(t, err)

	d := linearLikeDescriptor(t)
	plan1, err := NewCompiler(cache).Compile(d, Constraints{})
	require.NoError(t, err)

	// A fresh compiler over the same directory loads the persisted plan.
	cache2, err := NewDiskCache(dir)
	require.NoError(t, err)
	plan2, err := NewCompiler(cache2).Compile(d, Constraints{})
	require.NoError(t, err)
	require.Equal(t, plan1.DescriptorHash(), plan2.DescriptorHash())
	require.Equal(t, plan1.NumGroups(), plan2.NumGroups())
}
