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

package appcli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshoecraft/osimager/pkg/buildassembly"
	"github.com/sshoecraft/osimager/pkg/cli"
	"github.com/sshoecraft/osimager/pkg/config"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/sshoecraft/osimager/pkg/globalconfig"
	"github.com/sshoecraft/osimager/pkg/orchestrator"
)

func TestApplySettingOverrides(t *testing.T) {
	cfg := &globalconfig.Config{}
	applySettingOverrides(cfg, map[string]string{
		"credential_source":     "remote",
		"credentials_file":      "/tmp/secrets",
		"vault.addr":            "https://vault:8200",
		"vault.mount":           "osimager",
		"build.concurrency":     "9",
		"build.log_ring_capacity": "500",
		"build.retention":       "12h",
		"build.cancel_grace":    "45s",
		"log.level":             "debug",
		"log.format":            "json",
		"spec_dirs.platforms":   "/a/platforms",
	})

	assert.Equal(t, "remote", cfg.CredentialSource)
	assert.Equal(t, "/tmp/secrets", cfg.CredentialsFile)
	assert.Equal(t, "https://vault:8200", cfg.Vault.Addr)
	assert.Equal(t, "osimager", cfg.Vault.Mount)
	assert.Equal(t, 9, cfg.Build.Concurrency)
	assert.Equal(t, 500, cfg.Build.LogRingCapacity)
	assert.Equal(t, 12*time.Hour, cfg.Build.Retention)
	assert.Equal(t, 45*time.Second, cfg.Build.CancelGrace)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/a/platforms", cfg.SpecDirs.Platforms)
}

func TestApplySettingOverrides_UnknownKeyIgnored(t *testing.T) {
	cfg := &globalconfig.Config{CredentialSource: "local"}
	applySettingOverrides(cfg, map[string]string{"nonsense.key": "value"})
	assert.Equal(t, "local", cfg.CredentialSource)
}

func TestApplySettingOverrides_BadDurationLeavesPreviousValue(t *testing.T) {
	cfg := &globalconfig.Config{}
	cfg.Build.CancelGrace = 30 * time.Second
	applySettingOverrides(cfg, map[string]string{"build.cancel_grace": "not-a-duration"})
	assert.Equal(t, 30*time.Second, cfg.Build.CancelGrace)
}

func TestPlatformNames_DedupsExtensionsAndSorts(t *testing.T) {
	dataDir := t.TempDir()
	platformsDir := filepath.Join(dataDir, "platforms")
	require.NoError(t, os.MkdirAll(platformsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(platformsDir, "vmware.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(platformsDir, "vmware.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(platformsDir, "hyperv.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(platformsDir, "README.md"), []byte(""), 0o644))

	names, err := platformNames(dataDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"hyperv", "vmware"}, names)
}

func TestPlatformNames_MissingDirReturnsEmpty(t *testing.T) {
	names, err := platformNames(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFindPlatformFile(t *testing.T) {
	dataDir := t.TempDir()
	platformsDir := filepath.Join(dataDir, "platforms")
	require.NoError(t, os.MkdirAll(platformsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(platformsDir, "vmware.toml"), []byte(""), 0o644))

	path, err := findPlatformFile(dataDir, "vmware")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(platformsDir, "vmware.toml"), path)

	_, err = findPlatformFile(dataDir, "missing")
	assert.Error(t, err)
}

func TestParseInt(t *testing.T) {
	n, err := parseInt("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = parseInt("nope")
	assert.Error(t, err)
}

func TestParseTemp(t *testing.T) {
	d, err := parseTemp("")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)

	d, err = parseTemp("45m")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, d)

	_, err = parseTemp("not-a-duration")
	assert.Error(t, err)
}

func TestToMap(t *testing.T) {
	doc := buildassembly.Document{Variables: map[string]any{"hostname": "web01"}}
	m, err := toMap(doc)
	require.NoError(t, err)
	assert.Equal(t, "web01", m["variables"].(map[string]any)["hostname"])
}

func TestDryRunInvocation(t *testing.T) {
	assembled := &buildassembly.Assembled{
		Accumulator: &config.Accumulator{Defs: map[string]any{"name": "web01", "workspace": "/tmp/ws"}},
	}
	opts := Options{BuildCLIOptions: cli.BuildCLIOptions{
		Name:      "web01",
		Timestamp: true,
		OnError:   "cleanup",
		Force:     true,
		Debug:     true,
	}}

	line := dryRunInvocation(assembled, opts)
	assert.Equal(t, "packer build -timestamp-ui -on-error=cleanup -force -debug /tmp/ws/web01.json", line)
}

func TestDryRunInvocation_NameFallsBackToDefs(t *testing.T) {
	assembled := &buildassembly.Assembled{
		Accumulator: &config.Accumulator{Defs: map[string]any{"name": "derived01", "workspace": "/tmp/ws"}},
	}
	line := dryRunInvocation(assembled, Options{})
	assert.Equal(t, "packer build /tmp/ws/derived01.json", line)
}

func TestExitCodeForErr(t *testing.T) {
	assert.Equal(t, 0, exitCodeForErr(nil))
	assert.Equal(t, 1, exitCodeForErr(assert.AnError))
	assert.Equal(t, oerrors.SpecNotFound.ExitCode(), exitCodeForErr(oerrors.WithKind(oerrors.SpecNotFound, assert.AnError)))
}

func TestExitCodeForSnapshot(t *testing.T) {
	assert.Equal(t, 0, exitCodeForSnapshot(orchestrator.Snapshot{State: orchestrator.StateCompleted}))
	assert.Equal(t, oerrors.Cancelled.ExitCode(), exitCodeForSnapshot(orchestrator.Snapshot{State: orchestrator.StateCancelled}))
	assert.Equal(t, oerrors.TimedOut.ExitCode(), exitCodeForSnapshot(orchestrator.Snapshot{State: orchestrator.StateTimedOut}))
	assert.Equal(t, 1, exitCodeForSnapshot(orchestrator.Snapshot{State: orchestrator.StateFailed}))
	assert.Equal(t, oerrors.PackerExitError.ExitCode(), exitCodeForSnapshot(orchestrator.Snapshot{
		State: orchestrator.StateFailed,
		Kind:  oerrors.PackerExitError,
	}))
}

func TestBuildCredentialProvider_LocalMissingFileReturnsNil(t *testing.T) {
	cfg := &globalconfig.Config{CredentialSource: "local", CredentialsFile: filepath.Join(t.TempDir(), "absent")}
	assert.Nil(t, buildCredentialProvider(cfg))
}

func TestBuildCredentialProvider_LocalEmptyPathReturnsNil(t *testing.T) {
	cfg := &globalconfig.Config{CredentialSource: "local"}
	assert.Nil(t, buildCredentialProvider(cfg))
}

func TestBuildCredentialProvider_RemoteNeverFailsAtConstruction(t *testing.T) {
	cfg := &globalconfig.Config{CredentialSource: "remote"}
	cfg.Vault.Addr = "https://vault.internal:8200"
	cfg.Vault.Mount = "secret"
	assert.NotNil(t, buildCredentialProvider(cfg))
}
