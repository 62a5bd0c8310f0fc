// Package proxycache is the optional durability layer for precomputed
// low-resolution proxies, keyed by clip id. Absence of a proxy is never
// an error; playback falls back to the original source.
package proxycache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/pkg/util"
)

const proxyExt = ".mp4"

// Cache stores proxy files in a directory on disk.
type Cache struct {
	logger zerolog.Logger
	dir    string
}

// New opens (creating if needed) a cache rooted at dir.
func New(logger zerolog.Logger, dir string) (*Cache, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create proxy cache dir: %w", err)
	}
	return &Cache{
		logger: logger.With().Str("component", "proxycache").Logger(),
		dir:    dir,
	}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns where the proxy for a clip lives and whether it exists.
func (c *Cache) Path(clipID string) (string, bool) {
	path := filepath.Join(c.dir, clipID+proxyExt)
	return path, util.FileExists(path)
}

// Put stores proxy bytes for a clip, atomically via a temp file so a
// crashed write never leaves a half-proxy behind.
func (c *Cache) Put(clipID string, data []byte) error {
	tmp, err := util.TempFile(c.dir, clipID, ".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp proxy file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		util.CleanupFiles(tmpName)
		return fmt.Errorf("failed to write proxy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		util.CleanupFiles(tmpName)
		return err
	}

	final := filepath.Join(c.dir, clipID+proxyExt)
	if err := os.Rename(tmpName, final); err != nil {
		util.CleanupFiles(tmpName)
		return fmt.Errorf("failed to commit proxy: %w", err)
	}

	c.logger.Debug().Str("clip", clipID).Int("bytes", len(data)).Msg("stored proxy")
	return nil
}

// Get loads proxy bytes for a clip. A missing proxy returns ok=false
// with no error.
func (c *Cache) Get(clipID string) ([]byte, bool, error) {
	path := filepath.Join(c.dir, clipID+proxyExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Delete removes a clip's proxy, if present.
func (c *Cache) Delete(clipID string) {
	util.CleanupFiles(filepath.Join(c.dir, clipID+proxyExt))
}

// Clear empties the cache directory and recreates it.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return fmt.Errorf("failed to clear proxy cache: %w", err)
	}
	return util.EnsureDir(c.dir)
}
