package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c := NewFileCache[[]string](t.TempDir(), 0)
	key := Key("farm", 20, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC))

	_, ok := c.Get(key)
	assert.False(t, ok)

	require.NoError(t, c.Set(key, []string{"2022-01-01", "2022-01-06"}))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"2022-01-01", "2022-01-06"}, got)

	require.NoError(t, c.Delete(key))
	require.NoError(t, c.Delete(key))
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestFileCacheExpires(t *testing.T) {
	c := NewFileCache[int](t.TempDir(), time.Hour)
	now := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set("k", 7))
	now = now.Add(30 * time.Minute)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	now = now.Add(time.Hour)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestFileCacheRejectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache[int](dir, 0)
	require.NoError(t, c.Set("k", 7))

	path := filepath.Join(dir, "k.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(string(data[:len(`{"data":`)]) + "8" + string(data[len(`{"data":7`):]))
	require.NoError(t, os.WriteFile(path, tampered, 0o644))

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestKeyDependsOnEveryParam(t *testing.T) {
	assert.Equal(t, Key("a", 1), Key("a", 1))
	assert.NotEqual(t, Key("a", 1), Key("a", 2))
	assert.NotEqual(t, Key("a", 1), Key("b", 1))
	assert.Len(t, Key("a"), 40)
}
