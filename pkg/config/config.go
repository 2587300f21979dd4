/*
Copyright © 2024-present, Jayson Grace <jayson.e.grace@gmail.com>

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

// Package config implements the Hierarchical Config Resolver: loading
// platform, location, and spec files into ConfigLayers, merging them into
// an Accumulator in include-resolved order, and applying the Specific-Section
// Processor after every layer.
package config

// Accumulator is the mutable state a build resolves into. It is created once
// per build, mutated only during resolution, and frozen before the result is
// handed to the Template Substitution Engine and Build Assembly.
type Accumulator struct {
	Defs      map[string]any
	Config    map[string]any
	Variables map[string]any
	Evars     map[string]any

	Files []FileEntry

	PreProvisioners  []map[string]any
	Provisioners     []map[string]any
	PostProvisioners []map[string]any

	// Metadata accumulated from §6.1's non-section keys. Later layers win,
	// same as a defs key, except RequiredFiles which accumulates across the
	// whole chain since every layer's required files must be present.
	Platforms     []string
	Flavor        string
	Venv          string
	Provides      *Provides
	RequiredFiles []RequiredFile
}

// NewAccumulator returns an Accumulator with every section initialized to an
// empty (non-nil) value, so merging the first layer never needs a nil check.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		Defs:      map[string]any{},
		Config:    map[string]any{},
		Variables: map[string]any{},
		Evars:     map[string]any{},
	}
}

// MergeLayer folds one ConfigLayer into the accumulator following §3/§4.1's
// merge rules: method=="replace" clears list-typed sections first; mapping
// sections merge key-by-key, honoring a "merge" directive for selective deep
// merge; list sections otherwise append.
func (a *Accumulator) MergeLayer(l ConfigLayer) error {
	if l.Method == "replace" {
		a.Files = nil
		a.PreProvisioners = nil
		a.Provisioners = nil
		a.PostProvisioners = nil
	}

	mergeMapSection(a.Defs, l.Defs)
	mergeMapSection(a.Config, l.Config)
	mergeMapSection(a.Variables, l.Variables)
	mergeMapSection(a.Evars, l.Evars)

	a.Files = append(a.Files, l.Files...)
	a.PreProvisioners = append(a.PreProvisioners, l.PreProvisioners...)
	a.Provisioners = append(a.Provisioners, l.Provisioners...)
	a.PostProvisioners = append(a.PostProvisioners, l.PostProvisioners...)

	if len(l.Platforms) > 0 {
		a.Platforms = l.Platforms
	}
	if l.Flavor != "" {
		a.Flavor = l.Flavor
	}
	if l.Venv != "" {
		a.Venv = l.Venv
	}
	if l.Provides != nil {
		a.Provides = l.Provides
	}
	a.RequiredFiles = append(a.RequiredFiles, l.RequiredFiles...)

	return nil
}

// mergeMapSection merges src into dst in place. Keys named in src's "merge"
// directive are deep-merged (maps update recursively, lists extend); every
// other key replaces outright. The "merge" key itself is never copied into
// dst — it is a directive about this layer's own keys, not accumulator state.
func mergeMapSection(dst, src map[string]any) {
	if src == nil {
		return
	}

	deepKeys := toStringSet(src["merge"])
	for k, v := range src {
		if k == "merge" {
			continue
		}
		if deepKeys[k] {
			dst[k] = deepMergeValue(dst[k], v)
		} else {
			dst[k] = v
		}
	}
}

// deepMergeValue implements the §3 "merge" directive's per-type behavior:
// map→recursive update, list→extend, anything else→replace.
func deepMergeValue(old, new any) any {
	switch newV := new.(type) {
	case map[string]any:
		oldMap, ok := old.(map[string]any)
		if !ok {
			return newV
		}
		merged := make(map[string]any, len(oldMap)+len(newV))
		for k, v := range oldMap {
			merged[k] = v
		}
		for k, v := range newV {
			merged[k] = deepMergeValue(merged[k], v)
		}
		return merged
	case []any:
		oldList, ok := old.([]any)
		if !ok {
			return newV
		}
		return append(append([]any{}, oldList...), newV...)
	default:
		return newV
	}
}

func toStringSet(raw any) map[string]bool {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}
