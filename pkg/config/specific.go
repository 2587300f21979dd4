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
	"fmt"
	"regexp"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// SpecificOverride is one entry of a *_specific array: a case-insensitive
// full-match pattern against the current runtime value of its match field,
// and a body applied through the merger when the pattern matches.
type SpecificOverride struct {
	Pattern string
	Body    ConfigLayer
}

// parseSpecificOverrides decodes one *_specific array. matchField names the
// key inside each entry that holds the pattern (e.g. "platform" for
// platform_specific); the rest of the entry's keys decode as the override's
// body, including any further nested *_specific arrays.
func parseSpecificOverrides(raw any, matchField string) ([]SpecificOverride, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, nil
	}

	overrides := make([]SpecificOverride, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %d: expected a mapping, got %T", i, item)
		}
		pattern, ok := entry[matchField].(string)
		if !ok || pattern == "" {
			return nil, fmt.Errorf("entry %d: missing %q match pattern", i, matchField)
		}
		body, err := parseLayerFromMap(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		overrides = append(overrides, SpecificOverride{Pattern: pattern, Body: body})
	}
	return overrides, nil
}

// specificOrder is the §4.2 fixed processing sequence: platform, location,
// dist, version, arch, firmware, every time a layer's specific arrays are
// applied — whether at the top level or from inside a nested override body.
var specificOrder = []struct {
	defsKey string
	get     func(ConfigLayer) []SpecificOverride
}{
	{"platform", func(l ConfigLayer) []SpecificOverride { return l.PlatformSpecific }},
	{"location", func(l ConfigLayer) []SpecificOverride { return l.LocationSpecific }},
	{"dist", func(l ConfigLayer) []SpecificOverride { return l.DistSpecific }},
	{"version", func(l ConfigLayer) []SpecificOverride { return l.VersionSpecific }},
	{"arch", func(l ConfigLayer) []SpecificOverride { return l.ArchSpecific }},
	{"firmware", func(l ConfigLayer) []SpecificOverride { return l.FirmwareSpecific }},
}

// applySpecificSections walks layer's six *_specific arrays in fixed order.
// For each entry whose pattern full-matches (case-insensitive) the
// accumulator's current value for the match field, the entry's body is
// merged in and this function re-enters itself on the body — a single
// recursive function handles arbitrary nesting depth.
func applySpecificSections(acc *Accumulator, layer ConfigLayer, loader *Loader) error {
	for _, group := range specificOrder {
		runtimeVal, _ := acc.Defs[group.defsKey].(string)
		for _, override := range group.get(layer) {
			matched, err := matchesFully(override.Pattern, runtimeVal)
			if err != nil {
				return oerrors.WithKind(oerrors.ConfigParseError, fmt.Errorf("%s_specific pattern %q: %w", group.defsKey, override.Pattern, err))
			}
			if !matched {
				continue
			}
			if err := acc.MergeLayer(override.Body); err != nil {
				return err
			}
			if err := applySpecificSections(acc, override.Body, loader); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesFully(pattern, value string) (bool, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")$")
	if err != nil {
		return false, err
	}
	return re.MatchString(value), nil
}
