package sizecache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/importcost/internal/sizecache"
	"github.com/Sumatoshi-tech/importcost/pkg/importmodel"
)

const testBundlerVersion = "v0.25.5"

func newCache(t *testing.T, dir, bundlerVersion string) *sizecache.Cache {
	t.Helper()

	cache, err := sizecache.New(sizecache.Config{
		Dir:            dir,
		BundlerVersion: bundlerVersion,
	})
	require.NoError(t, err)

	return cache
}

func chaiKey() sizecache.Key {
	return sizecache.Key{
		Package: "chai",
		Version: "4.3.7",
		Import:  `import { expect } from "chai"; console.log(expect);`,
	}
}

func TestCache_PutGet(t *testing.T) {
	t.Parallel()

	cache := newCache(t, t.TempDir(), testBundlerVersion)
	key := chaiKey()

	_, ok := cache.Get(key)
	assert.False(t, ok)

	want := importmodel.SizeResult{Size: 12345, Gzip: 4567}
	cache.Put(key, want)

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCache_ClearKeepsDiskTier(t *testing.T) {
	t.Parallel()

	cache := newCache(t, t.TempDir(), testBundlerVersion)
	key := chaiKey()
	want := importmodel.SizeResult{Size: 1000, Gzip: 300}

	cache.Put(key, want)
	cache.Clear()

	// The miss in memory rehydrates from disk.
	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCache_SurvivesColdStart(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := chaiKey()
	want := importmodel.SizeResult{Size: 1000, Gzip: 300}

	newCache(t, dir, testBundlerVersion).Put(key, want)

	// A fresh instance simulates a new process.
	got, ok := newCache(t, dir, testBundlerVersion).Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCache_BundlerVersionMismatchDiscards(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := chaiKey()

	newCache(t, dir, "v0.20.0").Put(key, importmodel.SizeResult{Size: 1, Gzip: 1})

	_, ok := newCache(t, dir, testBundlerVersion).Get(key)
	assert.False(t, ok)
}

func TestCache_CorruptFileSelfHeals(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache := newCache(t, dir, testBundlerVersion)
	key := chaiKey()

	cache.Put(key, importmodel.SizeResult{Size: 1, Gzip: 1})
	require.NoError(t, os.WriteFile(cache.DiskPath(), []byte("not a cache"), 0o644))

	fresh := newCache(t, dir, testBundlerVersion)

	_, ok := fresh.Get(key)
	assert.False(t, ok)

	// Storing after corruption rebuilds the file.
	fresh.Put(key, importmodel.SizeResult{Size: 2, Gzip: 2})

	got, ok := newCache(t, dir, testBundlerVersion).Get(key)
	require.True(t, ok)
	assert.Equal(t, importmodel.SizeResult{Size: 2, Gzip: 2}, got)
}

func TestCache_RenamedAwayAndBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := chaiKey()
	want := importmodel.SizeResult{Size: 777, Gzip: 111}

	newCache(t, dir, testBundlerVersion).Put(key, want)

	path := filepath.Join(dir, filepath.Base(newCache(t, dir, testBundlerVersion).DiskPath()))
	backup := path + ".bak"

	require.NoError(t, os.Rename(path, backup))

	cold := newCache(t, dir, testBundlerVersion)

	_, ok := cold.Get(key)
	assert.False(t, ok)

	require.NoError(t, os.Rename(backup, path))

	// Rehydration re-reads on the next miss.
	got, ok := cold.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCache_Stats(t *testing.T) {
	t.Parallel()

	cache := newCache(t, t.TempDir(), testBundlerVersion)
	key := chaiKey()

	_, _ = cache.Get(key)
	cache.Put(key, importmodel.SizeResult{Size: 10, Gzip: 5})
	_, _ = cache.Get(key)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.DiskEntries)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)
}

func TestCache_LastWriterWins(t *testing.T) {
	t.Parallel()

	cache := newCache(t, t.TempDir(), testBundlerVersion)
	key := chaiKey()

	cache.Put(key, importmodel.SizeResult{Size: 1, Gzip: 1})
	cache.Put(key, importmodel.SizeResult{Size: 2, Gzip: 2})

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, importmodel.SizeResult{Size: 2, Gzip: 2}, got)
}
