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

// Package installer concatenates template fragments named by a resolved
// build's files section and writes the result into the build workspace.
package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sshoecraft/osimager/pkg/config"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/sshoecraft/osimager/pkg/template"
)

// Generator writes a build's installer files into its workspace.
type Generator struct {
	// FragmentRoot is where files entries' Sources paths are rooted.
	FragmentRoot string
	// WorkspaceRoot is where Dest paths are written, relative to it.
	WorkspaceRoot string
}

// Generate walks acc.Files in order, rendering each into the workspace. Per
// entry: the entry's own Sources/Dest strings are template-expanded first
// (so a source path may itself contain a marker), each resulting source
// file is read and concatenated in order, the concatenated blob is
// template-expanded again, and the result is written atomically to
// <WorkspaceRoot>/<dest>.
func (g *Generator) Generate(acc *config.Accumulator, engine *template.Engine) error {
	for _, f := range acc.Files {
		dest, sources, err := expandEntry(f, engine)
		if err != nil {
			return err
		}

		var blob strings.Builder
		for _, src := range sources {
			path := src
			if !filepath.IsAbs(path) {
				path = filepath.Join(g.FragmentRoot, path)
			}
			contents, err := os.ReadFile(path)
			if err != nil {
				return oerrors.WithKind(oerrors.SourceUnavailable,
					fmt.Errorf("installer: reading fragment %q: %w", path, err))
			}
			blob.Write(contents)
		}

		expanded, err := engine.Walk(blob.String())
		if err != nil {
			return err
		}
		rendered, ok := expanded.(string)
		if !ok {
			return fmt.Errorf("installer: expanded fragment for %q did not resolve to a string", dest)
		}

		destPath := dest
		if !filepath.IsAbs(destPath) {
			destPath = filepath.Join(g.WorkspaceRoot, destPath)
		}
		if err := writeAtomic(destPath, []byte(rendered)); err != nil {
			return err
		}
	}
	return nil
}

// expandEntry resolves a files entry's own Dest and each Sources string
// through engine, returning the resolved dest path and source paths.
func expandEntry(f config.FileEntry, engine *template.Engine) (dest string, sources []string, err error) {
	expandedDest, err := engine.Walk(f.Dest)
	if err != nil {
		return "", nil, err
	}
	dest = fmt.Sprint(expandedDest)

	sources = make([]string, 0, len(f.Sources))
	for _, src := range f.Sources {
		expandedSrc, err := engine.Walk(src)
		if err != nil {
			return "", nil, err
		}
		sources = append(sources, fmt.Sprint(expandedSrc))
	}
	return dest, sources, nil
}

// writeAtomic writes data to path via a temp file in the same directory,
// synced and renamed into place so a crash never leaves a half-written
// installer file in the workspace.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("installer: creating workspace directory %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".installer-*.tmp")
	if err != nil {
		return fmt.Errorf("installer: creating temp installer file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("installer: writing temp installer file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("installer: syncing temp installer file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installer: closing temp installer file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installer: chmod temp installer file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("installer: renaming temp installer file into place: %w", err)
	}
	return nil
}
