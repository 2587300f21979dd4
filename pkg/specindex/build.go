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
	"sort"
	"strings"
	"time"

	"github.com/sshoecraft/osimager/pkg/config"
)

var specFileNames = []string{"spec.json", "spec.toml", "spec.yaml", "spec.yml"}

// Build walks specsDir for spec files, expands each one's provides
// declaration into (dist, version, arch) entries, and returns the sorted
// index. isoDir (optional, pass "" to skip) is checked for a locally cached
// ISO per entry using the <isoDir>/<dist>/<version>/<arch>.iso convention.
func Build(specsDir, isoDir string) (*Index, error) {
	specFiles, err := findSpecFiles(specsDir)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, path := range specFiles {
		layer, err := config.LoadRawLayer(path)
		if err != nil {
			return nil, fmt.Errorf("specindex: %s: %w", path, err)
		}
		if layer.Provides == nil {
			continue
		}

		expanded, err := expandProvides(*layer.Provides)
		if err != nil {
			return nil, fmt.Errorf("specindex: %s: %w", path, err)
		}

		for _, e := range expanded {
			e.SpecPath = path
			e.IsoLocal = isoDir != "" && isoFileExists(isoDir, e.Dist, e.Version, e.Arch)
			entries = append(entries, e)
		}
	}

	sortEntries(entries)

	return &Index{Entries: entries, BuiltAt: time.Now()}, nil
}

func expandProvides(p config.Provides) ([]Entry, error) {
	var versions []string
	for _, v := range p.Versions {
		expanded, err := ExpandVersions(v)
		if err != nil {
			return nil, err
		}
		versions = append(versions, expanded...)
	}

	arches := p.Arches
	if len(arches) == 0 {
		arches = []string{""}
	}

	entries := make([]Entry, 0, len(versions)*len(arches))
	for _, v := range versions {
		for _, a := range arches {
			entries = append(entries, Entry{
				Key:     specKey(p.Dist, v, a),
				Dist:    p.Dist,
				Version: v,
				Arch:    a,
			})
		}
	}
	return entries, nil
}

func specKey(dist, version, arch string) string {
	if arch == "" {
		return fmt.Sprintf("%s-%s", dist, version)
	}
	return fmt.Sprintf("%s-%s-%s", dist, version, arch)
}

func findSpecFiles(specsDir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(specsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		for _, name := range specFileNames {
			if base == name {
				found = append(found, path)
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("specindex: scanning %s: %w", specsDir, err)
	}
	return found, nil
}

func isoFileExists(isoDir, dist, version, arch string) bool {
	path := filepath.Join(isoDir, dist, version, arch+".iso")
	_, err := os.Stat(path)
	return err == nil
}

// sortEntries applies the natural (version-aware) ordering of §4.4: by
// dist, then by CompareVersions, then by arch.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Dist != b.Dist {
			return strings.Compare(a.Dist, b.Dist) < 0
		}
		if a.Version != b.Version {
			return CompareVersions(a.Version, b.Version) < 0
		}
		return a.Arch < b.Arch
	})
}

// newestModTime returns the most recent modification time among every spec
// file under specsDir, used to decide whether the on-disk cache is stale.
func newestModTime(specsDir string) (time.Time, error) {
	var newest time.Time
	err := filepath.WalkDir(specsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		isSpec := false
		for _, name := range specFileNames {
			if d.Name() == name {
				isSpec = true
				break
			}
		}
		if !isSpec {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("specindex: scanning %s: %w", specsDir, err)
	}
	return newest, nil
}
