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

package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshoecraft/osimager/pkg/config"
	"github.com/sshoecraft/osimager/pkg/template"
)

func writeFragment(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestGenerator_Generate_ConcatenatesAndExpands(t *testing.T) {
	fragDir := t.TempDir()
	workDir := t.TempDir()
	writeFragment(t, fragDir, "header.sh", "#!/bin/sh\n")
	writeFragment(t, fragDir, "body.sh", "echo %>hostname<%\n")

	acc := config.NewAccumulator()
	acc.Defs = map[string]any{"hostname": "web01"}
	acc.Files = []config.FileEntry{{
		Sources: []string{"header.sh", "body.sh"},
		Dest:    "setup.sh",
	}}

	engine := template.New(acc.Defs, nil, nil)
	gen := &Generator{FragmentRoot: fragDir, WorkspaceRoot: workDir}
	require.NoError(t, gen.Generate(acc, engine))

	out, err := os.ReadFile(filepath.Join(workDir, "setup.sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho web01\n", string(out))
}

func TestGenerator_Generate_ExpandsSourceAndDestPaths(t *testing.T) {
	fragDir := t.TempDir()
	workDir := t.TempDir()
	writeFragment(t, fragDir, "rhel.sh", "yum update\n")

	acc := config.NewAccumulator()
	acc.Defs = map[string]any{"dist": "rhel"}
	acc.Files = []config.FileEntry{{
		Sources: []string{"+>dist<+.sh"},
		Dest:    "+>dist<+-setup.sh",
	}}

	engine := template.New(acc.Defs, nil, nil)
	gen := &Generator{FragmentRoot: fragDir, WorkspaceRoot: workDir}
	require.NoError(t, gen.Generate(acc, engine))

	out, err := os.ReadFile(filepath.Join(workDir, "rhel-setup.sh"))
	require.NoError(t, err)
	assert.Equal(t, "yum update\n", string(out))
}

func TestGenerator_Generate_MissingSourceFails(t *testing.T) {
	fragDir := t.TempDir()
	workDir := t.TempDir()

	acc := config.NewAccumulator()
	acc.Defs = map[string]any{}
	acc.Files = []config.FileEntry{{Sources: []string{"missing.sh"}, Dest: "setup.sh"}}

	engine := template.New(acc.Defs, nil, nil)
	gen := &Generator{FragmentRoot: fragDir, WorkspaceRoot: workDir}
	err := gen.Generate(acc, engine)
	require.Error(t, err)
}

func TestGenerator_Generate_CreatesNestedDestDirectories(t *testing.T) {
	fragDir := t.TempDir()
	workDir := t.TempDir()
	writeFragment(t, fragDir, "a.sh", "a\n")

	acc := config.NewAccumulator()
	acc.Defs = map[string]any{}
	acc.Files = []config.FileEntry{{Sources: []string{"a.sh"}, Dest: "scripts/nested/a.sh"}}

	engine := template.New(acc.Defs, nil, nil)
	gen := &Generator{FragmentRoot: fragDir, WorkspaceRoot: workDir}
	require.NoError(t, gen.Generate(acc, engine))

	out, err := os.ReadFile(filepath.Join(workDir, "scripts", "nested", "a.sh"))
	require.NoError(t, err)
	assert.Equal(t, "a\n", string(out))
}

func TestGenerator_Generate_MultipleEntriesInOrder(t *testing.T) {
	fragDir := t.TempDir()
	workDir := t.TempDir()
	writeFragment(t, fragDir, "one.sh", "one\n")
	writeFragment(t, fragDir, "two.sh", "two\n")

	acc := config.NewAccumulator()
	acc.Defs = map[string]any{}
	acc.Files = []config.FileEntry{
		{Sources: []string{"one.sh"}, Dest: "first.sh"},
		{Sources: []string{"two.sh"}, Dest: "second.sh"},
	}

	engine := template.New(acc.Defs, nil, nil)
	gen := &Generator{FragmentRoot: fragDir, WorkspaceRoot: workDir}
	require.NoError(t, gen.Generate(acc, engine))

	first, err := os.ReadFile(filepath.Join(workDir, "first.sh"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(first))

	second, err := os.ReadFile(filepath.Join(workDir, "second.sh"))
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(second))
}
