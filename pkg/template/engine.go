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

// Package template implements the twelve-action Template Substitution
// Engine: a recursive walk over mappings, sequences, and strings that
// expands defs/credential/environment/expression markers in a fixed,
// non-reentrant action order.
package template

import (
	"fmt"
)

// SecretProvider is the subset of the Credential Provider contract the
// engine needs for actions 5, 8, 9, and 10. pkg/credentials implements it;
// the engine depends only on this interface to avoid an import cycle.
type SecretProvider interface {
	GetSecret(path, key string) (string, error)
}

// Resolver looks up the A record for a hostname, used by action 4. Its
// concrete implementation is free to consult location-specific DNS servers
// and search domains; the engine only needs the resulting address.
type Resolver interface {
	LookupHost(host string) (string, error)
}

// Engine expands template markers against a single defs binding set.
// Every exported Walk call uses the same Defs/Secrets/DNS for the
// lifetime of one Engine — callers construct a fresh Engine per resolved
// build target.
type Engine struct {
	Defs    map[string]any
	Secrets SecretProvider
	DNS     Resolver
}

// New returns an Engine bound to defs. secrets and dns may be nil; actions
// that need them fail with a descriptive error if they're absent when a
// marker requires them (secrets) or degrade to an empty string (DNS, per
// action 4's non-fatal failure mode).
func New(defs map[string]any, secrets SecretProvider, dns Resolver) *Engine {
	return &Engine{Defs: defs, Secrets: secrets, DNS: dns}
}

// Walk recursively expands markers in v: mapping keys and values, sequence
// elements (including splice markers), and strings. Non-string, non-mapping,
// non-sequence values pass through unchanged.
func (e *Engine) Walk(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		return e.walkMap(val)
	case []any:
		return e.walkSlice(val)
	case string:
		return e.expandString(val)
	default:
		return v, nil
	}
}

func (e *Engine) walkMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		expandedKey, err := e.expandString(k)
		if err != nil {
			return nil, fmt.Errorf("template: expanding key %q: %w", k, err)
		}
		keyStr, ok := expandedKey.(string)
		if !ok {
			keyStr = fmt.Sprint(expandedKey)
		}

		expandedVal, err := e.Walk(v)
		if err != nil {
			return nil, fmt.Errorf("template: expanding %q: %w", k, err)
		}
		out[keyStr] = expandedVal
	}
	return out, nil
}

func (e *Engine) walkSlice(s []any) ([]any, error) {
	out := make([]any, 0, len(s))
	for _, elem := range s {
		if str, ok := elem.(string); ok {
			if key, isSplice := spliceKey(str); isSplice {
				items, found, err := e.splice(key)
				if err != nil {
					return nil, err
				}
				if found {
					out = append(out, items...)
				}
				continue
			}
		}

		expanded, err := e.Walk(elem)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

// splice resolves action 12's defs value at key into a list of items. A
// list value is used as-is; a string value is split on whitespace and
// commas. A missing key drops the element (caller treats found=false as
// "append nothing").
func (e *Engine) splice(key string) ([]any, bool, error) {
	v, ok := e.Defs[key]
	if !ok {
		return nil, false, nil
	}
	switch val := v.(type) {
	case []any:
		return val, true, nil
	case string:
		return splitList(val), true, nil
	default:
		return []any{val}, true, nil
	}
}
