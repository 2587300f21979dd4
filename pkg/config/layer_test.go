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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayerFromMap_Sections(t *testing.T) {
	raw := map[string]any{
		"method": "merge",
		"defs":   map[string]any{"cpu_cores": 2},
		"config": map[string]any{"memory": 4096},
		"variables": map[string]any{
			"hostname": "vm01",
		},
		"evars": map[string]any{"PATH": "/usr/bin"},
		"files": []any{
			map[string]any{"sources": []any{"a.sh", "b.sh"}, "dest": "setup.sh"},
		},
		"provisioners": []any{
			map[string]any{"type": "shell", "inline": []any{"echo hi"}},
		},
	}

	layer, err := parseLayerFromMap(raw)
	require.NoError(t, err)

	assert.Equal(t, "merge", layer.Method)
	assert.Equal(t, 2, layer.Defs["cpu_cores"])
	assert.Equal(t, 4096, layer.Config["memory"])
	assert.Equal(t, "vm01", layer.Variables["hostname"])
	assert.Equal(t, "/usr/bin", layer.Evars["PATH"])
	require.Len(t, layer.Files, 1)
	assert.Equal(t, []string{"a.sh", "b.sh"}, layer.Files[0].Sources)
	assert.Equal(t, "setup.sh", layer.Files[0].Dest)
	require.Len(t, layer.Provisioners, 1)
	assert.Equal(t, "shell", layer.Provisioners[0]["type"])
}

func TestParseLayerFromMap_IncludeStringOrList(t *testing.T) {
	single, err := parseLayerFromMap(map[string]any{"include": "base"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, single.Include)

	multi, err := parseLayerFromMap(map[string]any{"include": []any{"base", "net"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"base", "net"}, multi.Include)

	none, err := parseLayerFromMap(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, none.Include)
}

func TestParseLayerFromMap_SpecificArraysAndNesting(t *testing.T) {
	raw := map[string]any{
		"version_specific": []any{
			map[string]any{
				"version": "9.*",
				"defs":    map[string]any{"cpu_cores": 4},
				"platform_specific": []any{
					map[string]any{
						"platform": "vmware",
						"defs":     map[string]any{"cpu_sockets": 2},
					},
				},
			},
		},
	}

	layer, err := parseLayerFromMap(raw)
	require.NoError(t, err)
	require.Len(t, layer.VersionSpecific, 1)

	override := layer.VersionSpecific[0]
	assert.Equal(t, "9.*", override.Pattern)
	assert.Equal(t, 4, override.Body.Defs["cpu_cores"])
	require.Len(t, override.Body.PlatformSpecific, 1)
	assert.Equal(t, "vmware", override.Body.PlatformSpecific[0].Pattern)
	assert.Equal(t, 2, override.Body.PlatformSpecific[0].Body.Defs["cpu_sockets"])
}

func TestParseLayerFromMap_ProvidesAndRequiredFiles(t *testing.T) {
	raw := map[string]any{
		"platforms": []any{"vmware", "kvm"},
		"flavor":    "server",
		"provides": map[string]any{
			"dist":     "rhel",
			"versions": []any{"9.[3-5]"},
			"arches":   []any{"x86_64"},
		},
		"required_files": []any{
			map[string]any{"file": "driver.iso", "description": "VMware tools", "url": "https://example.test/driver.iso"},
		},
	}

	layer, err := parseLayerFromMap(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"vmware", "kvm"}, layer.Platforms)
	assert.Equal(t, "server", layer.Flavor)
	require.NotNil(t, layer.Provides)
	assert.Equal(t, "rhel", layer.Provides.Dist)
	assert.Equal(t, []string{"9.[3-5]"}, layer.Provides.Versions)
	require.Len(t, layer.RequiredFiles, 1)
	assert.Equal(t, "driver.iso", layer.RequiredFiles[0].File)
}

func TestDecodeFile_JSONTOMLYAML(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "a.json")
	require.NoError(t, writeFile(jsonPath, `{"defs":{"cpu_cores":2}}`))
	raw, err := decodeFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, float64(2), raw["defs"].(map[string]any)["cpu_cores"])

	tomlPath := filepath.Join(dir, "b.toml")
	require.NoError(t, writeFile(tomlPath, "[defs]\ncpu_cores = 2\n"))
	raw, err = decodeFile(tomlPath)
	require.NoError(t, err)
	assert.EqualValues(t, 2, raw["defs"].(map[string]any)["cpu_cores"])

	yamlPath := filepath.Join(dir, "c.yaml")
	require.NoError(t, writeFile(yamlPath, "defs:\n  cpu_cores: 2\n"))
	raw, err = decodeFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, raw["defs"].(map[string]any)["cpu_cores"])
}

func TestDecodeFile_UnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.ini")
	require.NoError(t, writeFile(path, "x=1"))

	_, err := decodeFile(path)
	assert.Error(t, err)
}
