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
	"fmt"
	"os"
	"path/filepath"
	"time"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

const (
	lockPollInterval = 50 * time.Millisecond
	lockTimeout      = 10 * time.Second
)

// Resolver is the top-level entry point consumers reach for: it serves a
// cached Index when one is fresh, and rebuilds (behind a coarse file lock)
// when the specs tree has changed since the cache was written.
type Resolver struct {
	SpecsDir string
	IsoDir   string
	Cache    *Cache
}

// NewResolver builds a Resolver with its cache file at <specsDir>/index.json.
func NewResolver(specsDir, isoDir string) *Resolver {
	return &Resolver{
		SpecsDir: specsDir,
		IsoDir:   isoDir,
		Cache:    NewCache(filepath.Join(specsDir, "index.json")),
	}
}

// Index returns the current spec index, rebuilding it first if the cache is
// stale or absent.
func (r *Resolver) Index() (*Index, error) {
	stale, err := r.Cache.Stale(r.SpecsDir)
	if err != nil {
		return nil, err
	}
	if !stale {
		if idx, err := r.Cache.Load(); err == nil {
			return idx, nil
		}
	}
	return r.rebuild()
}

// Lookup satisfies buildassembly.SpecLookup: it resolves key to the
// (dist, version, arch) tuple an Index entry carries, plus whether that
// entry's ISO is already cached locally. A Resolver can be assigned
// directly wherever an Assembler wants a SpecLookup.
func (r *Resolver) Lookup(key string) (dist, version, arch string, isoLocal, found bool) {
	idx, err := r.Index()
	if err != nil {
		return "", "", "", false, false
	}
	entry, ok := idx.Lookup(key)
	if !ok {
		return "", "", "", false, false
	}
	return entry.Dist, entry.Version, entry.Arch, entry.IsoLocal, true
}

// SpecPath resolves a "dist-version[-arch]" key to the spec file providing
// it, matching the signature config.Loader.SpecPath expects.
func (r *Resolver) SpecPath(key string) (string, error) {
	idx, err := r.Index()
	if err != nil {
		return "", err
	}
	entry, ok := idx.Lookup(key)
	if !ok {
		return "", oerrors.WithKind(oerrors.SpecNotFound, fmt.Errorf("no spec provides %q", key))
	}
	return entry.SpecPath, nil
}

func (r *Resolver) rebuild() (*Index, error) {
	lockPath := r.Cache.Path + ".lock"
	release, err := acquireLock(lockPath)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another process may have rebuilt while we waited for the lock.
	stale, err := r.Cache.Stale(r.SpecsDir)
	if err != nil {
		return nil, err
	}
	if !stale {
		if idx, err := r.Cache.Load(); err == nil {
			return idx, nil
		}
	}

	idx, err := Build(r.SpecsDir, r.IsoDir)
	if err != nil {
		return nil, err
	}
	if err := r.Cache.Save(r.SpecsDir, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

// acquireLock takes a coarse, filesystem-based lock by creating path
// exclusively, polling until it succeeds or lockTimeout elapses. The
// returned release func removes the lock file.
func acquireLock(path string) (func(), error) {
	return acquireLockWithTimeout(path, lockTimeout)
}

func acquireLockWithTimeout(path string, timeout time.Duration) (func(), error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("specindex: acquiring rebuild lock: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("specindex: timed out waiting for rebuild lock %s", path)
		}
		time.Sleep(lockPollInterval)
	}
}
