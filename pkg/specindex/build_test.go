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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpecFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestBuild_ExpandsProvidesAcrossDistVersionArch(t *testing.T) {
	specsDir := t.TempDir()
	writeSpecFile(t, filepath.Join(specsDir, "rocky", "spec.json"), `{
		"provides": {"dist":"rocky","versions":["9.[3-4]"],"arches":["x86_64","aarch64"]}
	}`)

	idx, err := Build(specsDir, "")
	require.NoError(t, err)
	require.Len(t, idx.Entries, 4)

	keys := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		keys = append(keys, e.Key)
	}
	assert.Contains(t, keys, "rocky-9.3-x86_64")
	assert.Contains(t, keys, "rocky-9.4-aarch64")
}

func TestBuild_SortedByDistThenVersionThenArch(t *testing.T) {
	specsDir := t.TempDir()
	writeSpecFile(t, filepath.Join(specsDir, "rocky", "spec.json"), `{
		"provides": {"dist":"rocky","versions":["9.10","9.5"],"arches":["x86_64"]}
	}`)

	idx, err := Build(specsDir, "")
	require.NoError(t, err)
	require.Len(t, idx.Entries, 2)
	assert.Equal(t, "rocky-9.5-x86_64", idx.Entries[0].Key)
	assert.Equal(t, "rocky-9.10-x86_64", idx.Entries[1].Key)
}

func TestBuild_SpecWithoutProvidesSkipped(t *testing.T) {
	specsDir := t.TempDir()
	writeSpecFile(t, filepath.Join(specsDir, "common", "spec.json"), `{"defs":{"foo":"bar"}}`)

	idx, err := Build(specsDir, "")
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)
}

func TestBuild_IsoLocalDetection(t *testing.T) {
	specsDir := t.TempDir()
	isoDir := t.TempDir()
	writeSpecFile(t, filepath.Join(specsDir, "rocky", "spec.json"), `{
		"provides": {"dist":"rocky","versions":["9.3"],"arches":["x86_64"]}
	}`)
	writeSpecFile(t, filepath.Join(isoDir, "rocky", "9.3", "x86_64.iso"), "fake-iso")

	idx, err := Build(specsDir, isoDir)
	require.NoError(t, err)
	require.Len(t, idx.Entries, 1)
	assert.True(t, idx.Entries[0].IsoLocal)
}

func TestBuild_NoArchesDefaultsToSingleEntry(t *testing.T) {
	specsDir := t.TempDir()
	writeSpecFile(t, filepath.Join(specsDir, "alpine", "spec.json"), `{
		"provides": {"dist":"alpine","versions":["3.19"]}
	}`)

	idx, err := Build(specsDir, "")
	require.NoError(t, err)
	require.Len(t, idx.Entries, 1)
	assert.Equal(t, "alpine-3.19", idx.Entries[0].Key)
}
