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

// Package globalconfig loads osimager.conf, the persisted settings file
// that carries operator preferences (credential source, worker pool sizing,
// log retention). This is distinct from the per-build config layers
// resolved by pkg/config — those describe a VM image, this describes how
// the local installation of osimager behaves.
package globalconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the persisted osimager settings.
type Config struct {
	CredentialSource string             `mapstructure:"credential_source"`
	CredentialsFile  string             `mapstructure:"credentials_file"`
	Vault            VaultConfig        `mapstructure:"vault"`
	Build            BuildConfig        `mapstructure:"build"`
	Log              LogConfig          `mapstructure:"log"`
	SpecDirs         SpecDirs           `mapstructure:"spec_dirs"`
	ControlPlane     ControlPlaneConfig `mapstructure:"control_plane"`
}

// ControlPlaneConfig holds the observer-facing streaming server's settings.
type ControlPlaneConfig struct {
	Addr string `mapstructure:"addr"`
}

// VaultConfig holds Remote Credential Provider connection settings.
type VaultConfig struct {
	Addr      string `mapstructure:"addr"`
	TokenFile string `mapstructure:"token_file"`
	Mount     string `mapstructure:"mount"`
}

// BuildConfig holds Build Orchestrator tuning.
type BuildConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	LogRingCapacity int           `mapstructure:"log_ring_capacity"`
	Retention       time.Duration `mapstructure:"retention"`
	CancelGrace     time.Duration `mapstructure:"cancel_grace"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SpecDirs holds the on-disk roots for platforms/locations/specs.
type SpecDirs struct {
	Platforms string `mapstructure:"platforms"`
	Locations string `mapstructure:"locations"`
	Specs     string `mapstructure:"specs"`
	Installer string `mapstructure:"installer"`
}

// Load reads and parses osimager.conf from the XDG-aware search path.
// Returns a Config with defaults if no config file exists.
func Load() (*Config, error) {
	v := NewConfigViper()

	// Read config file (optional - doesn't error if missing)
	_ = v.ReadInConfig()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("OSIMAGER")
	v.AutomaticEnv()
	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// NewConfigViper builds a viper instance pre-loaded with osimager.conf's
// search paths, defaults, and OSIMAGER_ environment binding, without
// reading the file yet. Shared by Load and the CLI's --dump-config path.
func NewConfigViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("osimager.conf")
	v.SetConfigType("yaml")

	for _, dir := range GetConfigDirs() {
		v.AddConfigPath(dir)
	}

	setDefaults(v)

	v.SetEnvPrefix("OSIMAGER")
	v.AutomaticEnv()
	bindEnvVars(v)

	return v
}

// setDefaults sets default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("credential_source", "local")

	v.SetDefault("vault.addr", "")
	v.SetDefault("vault.token_file", "")
	v.SetDefault("vault.mount", "secret")

	v.SetDefault("build.concurrency", 3)
	v.SetDefault("build.log_ring_capacity", 10000)
	v.SetDefault("build.retention", "24h")
	v.SetDefault("build.cancel_grace", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("control_plane.addr", ":8090")

	home, err := os.UserHomeDir()
	if err == nil {
		base := filepath.Join(home, ".osimager")
		v.SetDefault("spec_dirs.platforms", filepath.Join(base, "platforms"))
		v.SetDefault("spec_dirs.locations", filepath.Join(base, "locations"))
		v.SetDefault("spec_dirs.specs", filepath.Join(base, "specs"))
		v.SetDefault("spec_dirs.installer", filepath.Join(base, "installer"))
		v.SetDefault("credentials_file", filepath.Join(base, "secrets"))
	}
}

// bindEnvVars explicitly binds environment variables to config keys.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("credential_source", "OSIMAGER_CREDENTIAL_SOURCE")
	_ = v.BindEnv("credentials_file", "OSIMAGER_CREDENTIALS_FILE")

	_ = v.BindEnv("vault.addr", "OSIMAGER_VAULT_ADDR")
	_ = v.BindEnv("vault.token_file", "OSIMAGER_VAULT_TOKEN_FILE")
	_ = v.BindEnv("vault.mount", "OSIMAGER_VAULT_MOUNT")

	_ = v.BindEnv("build.concurrency", "OSIMAGER_BUILD_CONCURRENCY")
	_ = v.BindEnv("build.log_ring_capacity", "OSIMAGER_BUILD_LOG_RING_CAPACITY")
	_ = v.BindEnv("build.retention", "OSIMAGER_BUILD_RETENTION")
	_ = v.BindEnv("build.cancel_grace", "OSIMAGER_BUILD_CANCEL_GRACE")

	_ = v.BindEnv("log.level", "OSIMAGER_LOG_LEVEL")
	_ = v.BindEnv("log.format", "OSIMAGER_LOG_FORMAT")

	_ = v.BindEnv("spec_dirs.platforms", "OSIMAGER_SPEC_DIRS_PLATFORMS")
	_ = v.BindEnv("spec_dirs.locations", "OSIMAGER_SPEC_DIRS_LOCATIONS")
	_ = v.BindEnv("spec_dirs.specs", "OSIMAGER_SPEC_DIRS_SPECS")
	_ = v.BindEnv("spec_dirs.installer", "OSIMAGER_SPEC_DIRS_INSTALLER")

	_ = v.BindEnv("control_plane.addr", "OSIMAGER_CONTROL_PLANE_ADDR")
}

// Get returns the global config instance.
// This is a convenience function that wraps Load().
func Get() (*Config, error) {
	return Load()
}
