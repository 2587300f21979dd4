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

package config

import (
	"fmt"
	"os"
	"path/filepath"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// Where names the resolution scope a logical name is loaded from.
type Where string

const (
	WherePlatforms Where = "platforms"
	WhereLocations Where = "locations"
	WhereSpecs     Where = "specs"
)

// candidateExtensions is tried in order for platforms and locations; specs
// are resolved by SpecPath instead (see §4.1: "specs: from the Spec Index").
var candidateExtensions = []string{".json", ".toml"}

// Loader resolves logical platform/location/spec names to files and merges
// their include chains into an Accumulator, invoking the Specific-Section
// Processor after every layer.
type Loader struct {
	// DataDir holds shipped platform definitions: <DataDir>/platforms/<name>.{json,toml}.
	DataDir string
	// UserDir holds user-authored locations: <UserDir>/locations/<name>.{json,toml}.
	UserDir string
	// SpecPath resolves a spec-index key to its spec file path. Required
	// only for Where==WhereSpecs; pkg/specindex supplies it at wiring time
	// to avoid an import cycle between the two packages.
	SpecPath func(name string) (string, error)
}

// NewLoader creates a Loader rooted at the given shipped-data and
// user-config directories.
func NewLoader(dataDir, userDir string) *Loader {
	return &Loader{DataDir: dataDir, UserDir: userDir}
}

// Resolve loads name from where, resolves its include chain, and returns the
// fully merged Accumulator with every layer's specific-section overrides
// applied.
func (l *Loader) Resolve(where Where, name string) (*Accumulator, error) {
	layers, err := l.loadChain(where, name, map[string]bool{})
	if err != nil {
		return nil, err
	}

	acc := NewAccumulator()
	for _, layer := range layers {
		if err := acc.MergeLayer(layer); err != nil {
			return nil, err
		}
		if err := applySpecificSections(acc, layer, l); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// ResolveBuild chains the three resolution scopes a build target needs in
// order: platform, then location, then spec (+ its own includes). Each
// scope's layers are merged into the same Accumulator, so a location's
// "platforms" restriction or a spec's defs can see and override what the
// platform already contributed.
func (l *Loader) ResolveBuild(platform, location, specKey string) (*Accumulator, error) {
	acc := NewAccumulator()
	scopes := []struct {
		where Where
		name  string
	}{
		{WherePlatforms, platform},
		{WhereLocations, location},
		{WhereSpecs, specKey},
	}
	for _, scope := range scopes {
		layers, err := l.loadChain(scope.where, scope.name, map[string]bool{})
		if err != nil {
			return nil, err
		}
		for _, layer := range layers {
			if err := acc.MergeLayer(layer); err != nil {
				return nil, err
			}
			if err := applySpecificSections(acc, layer, l); err != nil {
				return nil, err
			}
		}
	}
	return acc, nil
}

// loadChain performs the depth-first include resolution of §4.1: each
// include is loaded (recursively) in listed order and applied before the
// current layer. stack tracks the current DFS path only (not every file
// ever visited), so a diamond — two layers both including a shared third —
// is not mistaken for a cycle; only a true back-edge is rejected.
func (l *Loader) loadChain(where Where, name string, stack map[string]bool) ([]ConfigLayer, error) {
	path, err := l.resolvePath(where, name)
	if err != nil {
		return nil, err
	}

	canon, err := filepath.Abs(path)
	if err != nil {
		canon = path
	}
	if stack[canon] {
		return nil, oerrors.WithKind(oerrors.IncludeCycle, fmt.Errorf("include cycle detected at %s", path))
	}
	stack[canon] = true
	defer delete(stack, canon)

	raw, err := decodeFile(path)
	if err != nil {
		return nil, oerrors.WithKind(oerrors.ConfigParseError, err)
	}
	layer, err := parseLayerFromMap(raw)
	if err != nil {
		return nil, oerrors.WithKind(oerrors.ConfigParseError, fmt.Errorf("%s: %w", path, err))
	}

	var chain []ConfigLayer
	for _, include := range layer.Include {
		sub, err := l.loadChain(where, include, stack)
		if err != nil {
			return nil, err
		}
		chain = append(chain, sub...)
	}
	return append(chain, layer), nil
}

func (l *Loader) resolvePath(where Where, name string) (string, error) {
	switch where {
	case WherePlatforms:
		return findCandidate(filepath.Join(l.DataDir, "platforms"), name)
	case WhereLocations:
		return findCandidate(filepath.Join(l.UserDir, "locations"), name)
	case WhereSpecs:
		if l.SpecPath == nil {
			return "", fmt.Errorf("config: spec resolution requested but no SpecPath lookup configured")
		}
		return l.SpecPath(name)
	default:
		return "", fmt.Errorf("config: unknown resolution scope %q", where)
	}
}

func findCandidate(dir, name string) (string, error) {
	for _, ext := range candidateExtensions {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", oerrors.WithKind(oerrors.SpecNotFound, fmt.Errorf("%q not found under %s (tried %v)", name, dir, candidateExtensions))
}
