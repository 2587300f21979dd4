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

// Package credentials implements the two Credential Provider variants: a
// remote KV v2 store reached over the Vault HTTP API, and a local
// line-oriented secrets file. Both satisfy Provider, and both implement
// embedded-reference resolution for the downstream tool's `{{vault "path"
// "key"}}` document markers.
package credentials

import (
	"fmt"
	"regexp"
)

// Provider is the Credential Provider contract: a secret lookup and a
// document-tree walk that replaces embedded vault references. pkg/template
// depends only on the narrower SecretProvider interface (GetSecret), so
// either variant here also satisfies that contract without an import cycle.
type Provider interface {
	GetSecret(path, key string) (string, error)
	ResolveEmbeddedReferences(doc any) (any, error)
}

// embeddedRef matches the downstream build tool's `{{vault "path" "key"}}`
// reference syntax, accepting either single or double quotes around each
// argument.
var embeddedRef = regexp.MustCompile(`\{\{\s*vault\s+['"]([^'"]+)['"]\s+['"]([^'"]+)['"]\s*\}\}`)

// HasEmbeddedReference reports whether s contains a `{{vault ...}}`
// reference, used to decide whether a build needs a provider loaded at all
// before step 6 authenticates against one.
func HasEmbeddedReference(s string) bool {
	return embeddedRef.MatchString(s)
}

// walkResolveReferences recursively replaces embeddedRef occurrences in doc
// using get as the per-(path,key) lookup. It is shared by both provider
// variants; only the lookup function differs.
func walkResolveReferences(doc any, get func(path, key string) (string, error)) (any, error) {
	switch v := doc.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			resolved, err := walkResolveReferences(val, get)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			resolved, err := walkResolveReferences(val, get)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		return resolveReferencesInString(v, get)
	default:
		return doc, nil
	}
}

func resolveReferencesInString(s string, get func(path, key string) (string, error)) (string, error) {
	matches := embeddedRef.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var out []byte
	last := 0
	for _, m := range matches {
		out = append(out, s[last:m[0]]...)
		path, key := s[m[2]:m[3]], s[m[4]:m[5]]
		v, err := get(path, key)
		if err != nil {
			return "", fmt.Errorf("credentials: resolving embedded reference {{vault %q %q}}: %w", path, key, err)
		}
		out = append(out, v...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}
