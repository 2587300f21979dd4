/*
Copyright © 2024 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package specindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache persists a built Index to disk at Path, keyed to the newest spec
// file mtime seen at build time so a later scan can tell cheaply whether a
// rebuild is needed.
type Cache struct {
	Path string
}

type cacheFile struct {
	SpecsNewestModTime time.Time `json:"specs_newest_mod_time"`
	Index              Index     `json:"index"`
}

// NewCache returns a Cache backed by the given on-disk path.
func NewCache(path string) *Cache {
	return &Cache{Path: path}
}

// Stale reports whether the cache at c.Path is missing, unreadable, or older
// than the newest spec file currently under specsDir.
func (c *Cache) Stale(specsDir string) (bool, error) {
	newest, err := newestModTime(specsDir)
	if err != nil {
		return false, err
	}

	cached, err := c.load()
	if err != nil {
		// Missing or unreadable cache is treated as stale rather than an
		// error condition; the caller rebuilds and overwrites it.
		return true, nil
	}

	return newest.After(cached.SpecsNewestModTime), nil
}

// Load reads the cached Index from disk.
func (c *Cache) Load() (*Index, error) {
	cached, err := c.load()
	if err != nil {
		return nil, err
	}
	idx := cached.Index
	return &idx, nil
}

func (c *Cache) load() (*cacheFile, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, err
	}
	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("specindex: parsing cache %s: %w", c.Path, err)
	}
	return &cached, nil
}

// Save atomically writes idx to c.Path, stamping it with the newest spec
// file mtime under specsDir so a future Stale check can compare against it.
func (c *Cache) Save(specsDir string, idx *Index) error {
	newest, err := newestModTime(specsDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cacheFile{SpecsNewestModTime: newest, Index: *idx}, "", "  ")
	if err != nil {
		return fmt.Errorf("specindex: encoding cache: %w", err)
	}

	return writeAtomic(c.Path, data)
}

// writeAtomic writes data to path via a temp file in the same directory,
// synced and renamed into place so a crash never leaves a half-written
// cache file behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".specindex-cache-*.tmp")
	if err != nil {
		return fmt.Errorf("specindex: creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("specindex: writing temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("specindex: syncing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("specindex: closing temp cache file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("specindex: chmod temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("specindex: renaming temp cache file into place: %w", err)
	}
	return nil
}
