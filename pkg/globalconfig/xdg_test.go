/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

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

package globalconfig

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDirs_WithXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	dirs := GetConfigDirs()

	expectedFirst := filepath.Join(tmpDir, "osimager")
	require.NotEmpty(t, dirs)
	assert.Equal(t, expectedFirst, dirs[0])

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	legacyPath := filepath.Join(home, ".osimager")
	assert.Contains(t, dirs, legacyPath)
}

func TestGetConfigDirs_WithoutXDGConfigHome(t *testing.T) {
	require.NoError(t, os.Unsetenv("XDG_CONFIG_HOME"))

	dirs := GetConfigDirs()

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expectedFirst := filepath.Join(home, ".config", "osimager")
	require.NotEmpty(t, dirs)
	assert.Equal(t, expectedFirst, dirs[0])

	expectedLegacy := filepath.Join(home, ".osimager")
	require.GreaterOrEqual(t, len(dirs), 2)
	assert.Equal(t, expectedLegacy, dirs[1])
}

func TestGetConfigDirs_SystemPaths(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" && runtime.GOOS != "openbsd" {
		t.Skip("system paths only apply on Linux/BSD")
	}

	require.NoError(t, os.Unsetenv("XDG_CONFIG_HOME"))
	require.NoError(t, os.Unsetenv("XDG_CONFIG_DIRS"))

	dirs := GetConfigDirs()

	assert.Contains(t, dirs, filepath.Join("/etc", "xdg", "osimager"))
}

func TestGetConfigDirs_CustomXDGConfigDirs(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" && runtime.GOOS != "openbsd" {
		t.Skip("XDG_CONFIG_DIRS only applies on Linux/BSD")
	}

	tmpDir := t.TempDir()
	customPath := filepath.Join(tmpDir, "custom")
	t.Setenv("XDG_CONFIG_DIRS", customPath)

	dirs := GetConfigDirs()

	assert.Contains(t, dirs, filepath.Join(customPath, "osimager"))
}

func TestGetConfigDirs_macOSNoSystemPaths(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("this test only applies to macOS")
	}

	require.NoError(t, os.Unsetenv("XDG_CONFIG_HOME"))
	require.NoError(t, os.Unsetenv("XDG_CONFIG_DIRS"))

	dirs := GetConfigDirs()

	assert.NotContains(t, dirs, filepath.Join("/etc", "xdg", "osimager"))
}

func TestConfigFile_WithXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path, err := ConfigFile("osimager.yaml")
	require.NoError(t, err)

	expected := filepath.Join(tmpDir, "osimager", "osimager.yaml")
	assert.Equal(t, expected, path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestConfigFile_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path, err := ConfigFile("subdir/osimager.yaml")
	require.NoError(t, err)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
