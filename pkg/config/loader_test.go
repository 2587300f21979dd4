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
	"os"
	"path/filepath"
	"testing"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path, contents string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func TestLoader_Resolve_SingleFile(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "vmware.json"),
		`{"defs":{"platform":"vmware","cpu_cores":2}}`))

	l := NewLoader(dataDir, t.TempDir())
	acc, err := l.Resolve(WherePlatforms, "vmware")
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Defs["cpu_cores"])
	assert.Equal(t, "vmware", acc.Defs["platform"])
}

func TestLoader_Resolve_IncludeChainAppliesBeforeCurrentLayer(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "base.json"),
		`{"defs":{"cpu_cores":2,"disk_gb":40}}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "vmware.json"),
		`{"include":"base","defs":{"cpu_cores":4}}`))

	l := NewLoader(dataDir, t.TempDir())
	acc, err := l.Resolve(WherePlatforms, "vmware")
	require.NoError(t, err)

	assert.Equal(t, 4, acc.Defs["cpu_cores"], "the including layer applies after its include, so it wins")
	assert.Equal(t, 40, acc.Defs["disk_gb"])
}

func TestLoader_Resolve_IncludeListOrder(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "a.json"), `{"defs":{"x":"a"}}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "b.json"), `{"defs":{"x":"b"}}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "combo.json"), `{"include":["a","b"]}`))

	l := NewLoader(dataDir, t.TempDir())
	acc, err := l.Resolve(WherePlatforms, "combo")
	require.NoError(t, err)
	assert.Equal(t, "b", acc.Defs["x"], "later-listed include wins, same as any later layer")
}

func TestLoader_Resolve_IncludeCycleRejected(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "a.json"), `{"include":"b"}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "b.json"), `{"include":"a"}`))

	l := NewLoader(dataDir, t.TempDir())
	_, err := l.Resolve(WherePlatforms, "a")
	require.Error(t, err)
	kind, ok := oerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.IncludeCycle, kind)
}

func TestLoader_Resolve_DiamondIncludeIsNotACycle(t *testing.T) {
	dataDir := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "common.json"), `{"defs":{"shared":true}}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "left.json"), `{"include":"common"}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "right.json"), `{"include":"common"}`))
	require.NoError(t, writeFile(filepath.Join(dataDir, "platforms", "top.json"), `{"include":["left","right"]}`))

	l := NewLoader(dataDir, t.TempDir())
	acc, err := l.Resolve(WherePlatforms, "top")
	require.NoError(t, err, "common is included twice via two different parents, which is not a cycle")
	assert.Equal(t, true, acc.Defs["shared"])
}

func TestLoader_Resolve_NotFound(t *testing.T) {
	l := NewLoader(t.TempDir(), t.TempDir())
	_, err := l.Resolve(WherePlatforms, "missing")
	require.Error(t, err)
	kind, ok := oerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.SpecNotFound, kind)
}

func TestLoader_Resolve_Specs_UsesSpecPathFunc(t *testing.T) {
	dataDir := t.TempDir()
	specFile := filepath.Join(dataDir, "specs", "rhel-9.5-x86_64", "spec.json")
	require.NoError(t, writeFile(specFile, `{"defs":{"dist":"rhel"}}`))

	l := NewLoader(dataDir, t.TempDir())
	l.SpecPath = func(name string) (string, error) {
		return specFile, nil
	}

	acc, err := l.Resolve(WhereSpecs, "rhel-9.5-x86_64")
	require.NoError(t, err)
	assert.Equal(t, "rhel", acc.Defs["dist"])
}

func TestLoader_Resolve_Specs_MissingSpecPathFunc(t *testing.T) {
	l := NewLoader(t.TempDir(), t.TempDir())
	_, err := l.Resolve(WhereSpecs, "anything")
	assert.Error(t, err)
}

func TestLoader_Resolve_AppliesSpecificSectionsAlongTheWay(t *testing.T) {
	dataDir := t.TempDir()
	l := NewLoader(dataDir, t.TempDir())
	l.SpecPath = func(name string) (string, error) {
		return filepath.Join(dataDir, "specs", name+".json"), nil
	}
	require.NoError(t, writeFile(filepath.Join(dataDir, "specs", "rhel9.json"), `{
		"defs": {"dist": "rhel", "version": "9.5"},
		"version_specific": [
			{"version": "9\\..*", "defs": {"cpu_cores": 8}}
		]
	}`))

	acc, err := l.Resolve(WhereSpecs, "rhel9")
	require.NoError(t, err)
	assert.Equal(t, 8, acc.Defs["cpu_cores"])
}
