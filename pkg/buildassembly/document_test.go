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

package buildassembly

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshoecraft/osimager/pkg/config"
	"github.com/sshoecraft/osimager/pkg/credentials"
	"github.com/sshoecraft/osimager/pkg/template"
)

func TestApplyDefines_OverridesWin(t *testing.T) {
	defs := map[string]any{"hostname": "original"}
	ApplyDefines(defs, map[string]string{"hostname": "overridden"})
	assert.Equal(t, "overridden", defs["hostname"])
}

func TestApplyDefines_AddsNewKeys(t *testing.T) {
	defs := map[string]any{}
	ApplyDefines(defs, map[string]string{"extra": "value"})
	assert.Equal(t, "value", defs["extra"])
}

func newAccumulatorWithMarkers() *config.Accumulator {
	acc := config.NewAccumulator()
	acc.Defs = map[string]any{"hostname": "web01", "port": 8080}
	acc.Variables = map[string]any{"name": "%>hostname<%"}
	acc.Config = map[string]any{"instance_name": ">>hostname<<-instance"}
	acc.Files = []config.FileEntry{{Sources: []string{"fragments/+>hostname<+.sh"}, Dest: "setup.sh"}}
	acc.Provisioners = []map[string]any{{"inline": ">>hostname<<"}}
	return acc
}

func TestRunTemplateEngine_ExpandsEverySection(t *testing.T) {
	acc := newAccumulatorWithMarkers()
	engine := template.New(acc.Defs, nil, nil)

	err := RunTemplateEngine(acc, engine)
	require.NoError(t, err)

	assert.Equal(t, "web01", acc.Variables["name"])
	assert.Equal(t, "web01-instance", acc.Config["instance_name"])
	assert.Equal(t, "web01", acc.Provisioners[0]["inline"])
	assert.Equal(t, "fragments/web01.sh", acc.Files[0].Sources[0])
}

func TestAssembleDocument_OrdersProvisioners(t *testing.T) {
	acc := config.NewAccumulator()
	acc.PreProvisioners = []map[string]any{{"step": "pre"}}
	acc.Provisioners = []map[string]any{{"step": "main"}}
	acc.PostProvisioners = []map[string]any{{"step": "post"}}
	acc.Config = map[string]any{"type": "vmware-iso"}

	doc := AssembleDocument(acc)
	require.Len(t, doc.Provisioners, 3)
	assert.Equal(t, "pre", doc.Provisioners[0]["step"])
	assert.Equal(t, "main", doc.Provisioners[1]["step"])
	assert.Equal(t, "post", doc.Provisioners[2]["step"])
	assert.Equal(t, "vmware-iso", doc.Builders[0]["type"])
}

func TestResolveLocalEmbeddedReferences_ReplacesVaultMarkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets")
	require.NoError(t, os.WriteFile(path, []byte("kv/app password=s3cr3t\n"), 0o600))
	provider, err := credentials.LoadLocalProvider(path)
	require.NoError(t, err)

	doc := Document{
		Variables: map[string]any{"admin_password": `{{vault "kv/app" "password"}}`},
		Builders:  []map[string]any{{"type": "vmware-iso"}},
	}

	resolved, err := ResolveLocalEmbeddedReferences(doc, provider)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", resolved.Variables["admin_password"])
}

func TestApplyNullBuilder_KeepsOnlyCommunicatorKeysAndDropsFiles(t *testing.T) {
	doc := Document{
		Builders: []map[string]any{{
			"type":          "vmware-iso",
			"communicator":  "ssh",
			"ssh_username":  "admin",
			"files":         []any{"a.sh"},
			"disk_size":     40000,
		}},
	}

	result := ApplyNullBuilder(doc)
	require.Len(t, result.Builders, 1)
	b := result.Builders[0]
	assert.Equal(t, "null", b["type"])
	assert.Equal(t, "ssh", b["communicator"])
	assert.Equal(t, "admin", b["ssh_username"])
	assert.NotContains(t, b, "files")
	assert.NotContains(t, b, "disk_size")
}

func TestApplyNullBuilder_NoBuildersIsNoOp(t *testing.T) {
	doc := Document{}
	result := ApplyNullBuilder(doc)
	assert.Empty(t, result.Builders)
}
