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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileEntry is one entry of a layer's "files" section: installer fragments
// concatenated from sources and written to dest inside the build workspace.
type FileEntry struct {
	Sources []string
	Dest    string
}

// ConfigLayer is one loaded file's contribution: the eight semantic sections
// of §3 plus include/method and the six *_specific override arrays.
type ConfigLayer struct {
	Include []string
	Method  string

	Defs      map[string]any
	Config    map[string]any
	Variables map[string]any
	Evars     map[string]any

	Files []FileEntry

	PreProvisioners  []map[string]any
	Provisioners     []map[string]any
	PostProvisioners []map[string]any

	PlatformSpecific []SpecificOverride
	LocationSpecific []SpecificOverride
	DistSpecific     []SpecificOverride
	VersionSpecific  []SpecificOverride
	ArchSpecific     []SpecificOverride
	FirmwareSpecific []SpecificOverride

	// Metadata keys recognized alongside the merge sections (§6.1): a
	// location restricting which platforms it supports, a spec's flavor/venv
	// tag, and its provides/required_files declarations.
	Platforms     []string
	Flavor        string
	Venv          string
	Provides      *Provides
	RequiredFiles []RequiredFile
}

// Provides is a spec's declaration of the (dist, versions, arches) tuples it
// covers, consumed by the Spec Index when expanding version ranges.
type Provides struct {
	Dist     string
	Versions []string
	Arches   []string
}

// RequiredFile is one entry the Installer File Generator checks for before
// starting a build.
type RequiredFile struct {
	File        string
	Description string
	URL         string
	Location    string
}

// LoadRawLayer reads and parses a single config file into a ConfigLayer
// without resolving its include chain or merging it into an Accumulator.
// pkg/specindex uses this to read a spec file's "provides"/"required_files"
// metadata directly, without needing a full Loader.Resolve.
func LoadRawLayer(path string) (ConfigLayer, error) {
	raw, err := decodeFile(path)
	if err != nil {
		return ConfigLayer{}, err
	}
	return parseLayerFromMap(raw)
}

// decodeFile reads a platform/location/spec file and decodes it into a
// generic map, dispatching on extension. JSON, TOML, and YAML all decode
// into the same map[string]any shape so parseLayerFromMap never needs to
// know which format produced it.
func decodeFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unrecognized config extension", path)
	}

	return raw, nil
}

// parseLayerFromMap converts a generically-decoded map into a ConfigLayer,
// pulling out the well-known section keys and leaving everything else
// ignored (unknown top-level keys are tolerated; strict rejection of them
// is a ConfigParseError left to a future schema-validation pass, not this
// structural one).
func parseLayerFromMap(raw map[string]any) (ConfigLayer, error) {
	var l ConfigLayer

	l.Include = toIncludeList(raw["include"])
	if m, ok := raw["method"].(string); ok {
		l.Method = m
	}

	l.Defs = toStringAnyMap(raw["defs"])
	l.Config = toStringAnyMap(raw["config"])
	l.Variables = toStringAnyMap(raw["variables"])
	l.Evars = toStringAnyMap(raw["evars"])

	files, err := toFileEntries(raw["files"])
	if err != nil {
		return l, err
	}
	l.Files = files

	l.PreProvisioners, err = toMapSlice(raw["pre_provisioners"])
	if err != nil {
		return l, err
	}
	l.Provisioners, err = toMapSlice(raw["provisioners"])
	if err != nil {
		return l, err
	}
	l.PostProvisioners, err = toMapSlice(raw["post_provisioners"])
	if err != nil {
		return l, err
	}

	specificFields := []struct {
		key    string
		field  string
		target *[]SpecificOverride
	}{
		{"platform_specific", "platform", &l.PlatformSpecific},
		{"location_specific", "location", &l.LocationSpecific},
		{"dist_specific", "dist", &l.DistSpecific},
		{"version_specific", "version", &l.VersionSpecific},
		{"arch_specific", "arch", &l.ArchSpecific},
		{"firmware_specific", "firmware", &l.FirmwareSpecific},
	}
	for _, sf := range specificFields {
		overrides, err := parseSpecificOverrides(raw[sf.key], sf.field)
		if err != nil {
			return l, fmt.Errorf("%s: %w", sf.key, err)
		}
		*sf.target = overrides
	}

	l.Platforms = toStringList(raw["platforms"])
	if v, ok := raw["flavor"].(string); ok {
		l.Flavor = v
	}
	if v, ok := raw["venv"].(string); ok {
		l.Venv = v
	}
	l.Provides = toProvides(raw["provides"])
	l.RequiredFiles = toRequiredFiles(raw["required_files"])

	return l, nil
}

func toStringList(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toProvides(raw any) *Provides {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	p := &Provides{}
	if d, ok := m["dist"].(string); ok {
		p.Dist = d
	}
	p.Versions = toStringList(m["versions"])
	p.Arches = toStringList(m["arches"])
	return p
}

func toRequiredFiles(raw any) []RequiredFile {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]RequiredFile, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rf := RequiredFile{}
		if v, ok := m["file"].(string); ok {
			rf.File = v
		}
		if v, ok := m["description"].(string); ok {
			rf.Description = v
		}
		if v, ok := m["url"].(string); ok {
			rf.URL = v
		}
		if v, ok := m["location"].(string); ok {
			rf.Location = v
		}
		out = append(out, rf)
	}
	return out
}

func toIncludeList(raw any) []string {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toStringAnyMap(raw any) map[string]any {
	m, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func toFileEntries(raw any) ([]FileEntry, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, nil
	}

	entries := make([]FileEntry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("files: expected a mapping with sources/dest, got %T", item)
		}
		entry := FileEntry{}
		if dest, ok := m["dest"].(string); ok {
			entry.Dest = dest
		}
		switch s := m["sources"].(type) {
		case []any:
			for _, src := range s {
				if str, ok := src.(string); ok {
					entry.Sources = append(entry.Sources, str)
				}
			}
		case string:
			entry.Sources = []string{s}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toMapSlice(raw any) ([]map[string]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, nil
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a mapping entry, got %T", item)
		}
		out = append(out, m)
	}
	return out, nil
}
