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
	"fmt"
	"strings"

	"github.com/sshoecraft/osimager/pkg/config"
	"github.com/sshoecraft/osimager/pkg/credentials"
	"github.com/sshoecraft/osimager/pkg/template"
)

// communicatorPrefixes are the builder config keys a null builder keeps
// when a rfosimage request replaces the real builder (step 10): anything
// Packer's communicator block needs to reach an already-running host.
var communicatorPrefixes = []string{"communicator", "ssh_", "winrm_", "host", "user"}

// ApplyDefines overrides defs with caller-supplied --define key=value
// pairs. These always win over anything the resolution chain produced.
func ApplyDefines(defs map[string]any, defines map[string]string) {
	for k, v := range defines {
		defs[k] = v
	}
}

// Document is the Packer input document step 8 assembles: a builders list
// of one (the resolved platform config), a flattened provisioner list in
// pre/main/post order, and the variables section.
type Document struct {
	Variables    map[string]any `json:"variables"`
	Provisioners []map[string]any `json:"provisioners"`
	Builders     []map[string]any `json:"builders"`
}

// RunTemplateEngine expands markers across every section of an
// accumulator in a fixed order: defs, evars, variables, files,
// pre-provisioners, provisioners, post-provisioners, then config. defs is
// expanded first, against itself, so later sections see fully resolved
// defs values.
func RunTemplateEngine(acc *config.Accumulator, engine *template.Engine) error {
	expandedDefs, err := engine.Walk(acc.Defs)
	if err != nil {
		return err
	}
	acc.Defs = expandedDefs.(map[string]any)
	engine.Defs = acc.Defs

	expandedEvars, err := engine.Walk(acc.Evars)
	if err != nil {
		return err
	}
	acc.Evars = expandedEvars.(map[string]any)

	expandedVariables, err := engine.Walk(acc.Variables)
	if err != nil {
		return err
	}
	acc.Variables = expandedVariables.(map[string]any)

	for i, f := range acc.Files {
		expandedSources := make([]string, len(f.Sources))
		for j, src := range f.Sources {
			expanded, err := engine.Walk(src)
			if err != nil {
				return err
			}
			expandedSources[j] = fmt.Sprint(expanded)
		}
		expandedDest, err := engine.Walk(f.Dest)
		if err != nil {
			return err
		}
		acc.Files[i] = config.FileEntry{Sources: expandedSources, Dest: fmt.Sprint(expandedDest)}
	}

	if err := walkSectionList(engine, acc.PreProvisioners); err != nil {
		return err
	}
	if err := walkSectionList(engine, acc.Provisioners); err != nil {
		return err
	}
	if err := walkSectionList(engine, acc.PostProvisioners); err != nil {
		return err
	}

	expandedConfig, err := engine.Walk(acc.Config)
	if err != nil {
		return err
	}
	acc.Config = expandedConfig.(map[string]any)

	return nil
}

func walkSectionList(engine *template.Engine, list []map[string]any) error {
	for i, m := range list {
		expanded, err := engine.Walk(m)
		if err != nil {
			return err
		}
		list[i] = expanded.(map[string]any)
	}
	return nil
}

// AssembleDocument implements step 8: concatenate pre/main/post
// provisioners and wrap the resolved accumulator sections into the shape
// the downstream build tool expects.
func AssembleDocument(acc *config.Accumulator) Document {
	provisioners := make([]map[string]any, 0, len(acc.PreProvisioners)+len(acc.Provisioners)+len(acc.PostProvisioners))
	provisioners = append(provisioners, acc.PreProvisioners...)
	provisioners = append(provisioners, acc.Provisioners...)
	provisioners = append(provisioners, acc.PostProvisioners...)

	return Document{
		Variables:    acc.Variables,
		Provisioners: provisioners,
		Builders:     []map[string]any{acc.Config},
	}
}

// ResolveLocalEmbeddedReferences implements step 9: when credentials come
// from the local provider, the document still carries raw `{{vault ...}}`
// markers (the Template Engine's own credential actions only handle
// defs-bound secrets, not references embedded directly in provisioner
// bodies) and must have them walked and replaced before the document is
// handed off.
func ResolveLocalEmbeddedReferences(doc Document, provider credentials.Provider) (Document, error) {
	resolved, err := provider.ResolveEmbeddedReferences(map[string]any{
		"variables":    doc.Variables,
		"provisioners": provisionerSliceToAny(doc.Provisioners),
		"builders":     builderSliceToAny(doc.Builders),
	})
	if err != nil {
		return Document{}, err
	}
	m := resolved.(map[string]any)
	return Document{
		Variables:    m["variables"].(map[string]any),
		Provisioners: anyToMapSlice(m["provisioners"]),
		Builders:     anyToMapSlice(m["builders"]),
	}, nil
}

func provisionerSliceToAny(list []map[string]any) []any {
	out := make([]any, len(list))
	for i, m := range list {
		out[i] = m
	}
	return out
}

func builderSliceToAny(list []map[string]any) []any {
	return provisionerSliceToAny(list)
}

func anyToMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// ApplyNullBuilder implements step 10: a rfosimage re-provision replaces
// the real builder with Packer's null builder, keeping only the
// communicator-related keys and dropping files (there is nothing left to
// provision the host's disk image with, since it already exists).
func ApplyNullBuilder(doc Document) Document {
	if len(doc.Builders) == 0 {
		return doc
	}
	original := doc.Builders[0]
	nullBuilder := map[string]any{"type": "null"}
	for k, v := range original {
		if k == "files" {
			continue
		}
		if hasCommunicatorPrefix(k) {
			nullBuilder[k] = v
		}
	}
	doc.Builders = []map[string]any{nullBuilder}
	return doc
}

func hasCommunicatorPrefix(key string) bool {
	for _, prefix := range communicatorPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
