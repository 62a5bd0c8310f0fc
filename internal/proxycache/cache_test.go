package proxycache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(zerolog.Nop(), filepath.Join(t.TempDir(), "proxies"))
	require.NoError(t, err)
	return c
}

func TestPutGetRoundtrip(t *testing.T) {
	c := newTestCache(t)

	payload := []byte("proxy bytes")
	require.NoError(t, c.Put("clip-1", payload))

	got, ok, err := c.Get("clip-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)
}

func TestGetMissingIsNotAnError(t *testing.T) {
	c := newTestCache(t)

	got, ok, err := c.Get("nope")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPathReflectsExistence(t *testing.T) {
	c := newTestCache(t)

	path, ok := c.Path("clip-1")
	assert.False(t, ok)
	assert.Equal(t, filepath.Join(c.Dir(), "clip-1.mp4"), path)

	require.NoError(t, c.Put("clip-1", []byte("x")))
	path, ok = c.Path("clip-1")
	assert.True(t, ok)
	assert.FileExists(t, path)
}

func TestPutLeavesNoTempFilesBehind(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("clip-1", []byte("x")))

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clip-1.mp4", entries[0].Name())
}

func TestPutOverwrites(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("clip-1", []byte("old")))
	require.NoError(t, c.Put("clip-1", []byte("new")))

	got, ok, err := c.Get("clip-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), got)
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("clip-1", []byte("x")))
	c.Delete("clip-1")

	_, ok, err := c.Get("clip-1")
	assert.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	c.Delete("clip-1")
}

func TestClear(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.Put("clip-1", []byte("x")))
	require.NoError(t, c.Put("clip-2", []byte("y")))
	require.NoError(t, c.Clear())

	entries, err := os.ReadDir(c.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "clear recreates an empty cache dir")
}
