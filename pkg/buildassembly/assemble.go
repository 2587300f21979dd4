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

	"github.com/sshoecraft/osimager/pkg/config"
	"github.com/sshoecraft/osimager/pkg/credentials"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/sshoecraft/osimager/pkg/template"
)

// SpecLookup is the subset of pkg/specindex's Resolver that Assembler needs:
// mapping a spec-key to the (dist, version, arch) tuple and whether its ISO
// is already cached locally. *specindex.Resolver satisfies it directly
// through its Lookup method; it is kept as an interface here to avoid
// Assembler depending on the index's cache/rebuild machinery.
type SpecLookup interface {
	Lookup(key string) (dist, version, arch string, isoLocal bool, found bool)
}

// Assembler ties the Hierarchical Config Resolver, Spec Index, Template
// Substitution Engine, and Credential Provider together into the ten-step
// Build Assembly sequence.
type Assembler struct {
	Loader        *config.Loader
	SpecIndex     SpecLookup
	InstallerRoot string
	IsoDir        string
	IsoClient     HTTPHead

	CredentialSource string // "remote" | "local" | ""
	Credentials      credentials.Provider

	DNS template.Resolver

	// ForceLocalISO makes every ISO resolution use the local-cache path
	// regardless of what the Spec Index reports, for --local-only builds.
	ForceLocalISO bool

	// Settings seeds defs with data/user paths. The keys are written into
	// defs after the config layers are resolved, so they override any
	// same-named defs key a layer set.
	Settings map[string]any
}

// Assembled is the full result of one Build Assembly run: the document
// ready to hand to the downstream build tool, plus the accumulator it was
// built from (callers use it for logging/inspection, and the Installer
// File Generator uses its Files/RequiredFiles sections directly).
type Assembled struct {
	Accumulator *config.Accumulator
	Document    Document
	Dist        string
	Version     string
	Arch        string
}

// Assemble runs the full ten-step sequence for req and returns the
// resulting Packer input document.
func (a *Assembler) Assemble(req Request) (*Assembled, error) {
	dist, version, arch, isoLocal, found := a.SpecIndex.Lookup(req.Target.SpecKey)
	if !found {
		return nil, oerrors.WithKind(oerrors.SpecNotFound,
			fmt.Errorf("buildassembly: no spec provides %q", req.Target.SpecKey))
	}

	acc, err := a.Loader.ResolveBuild(req.Target.Platform, req.Target.Location, req.Target.SpecKey)
	if err != nil {
		return nil, err
	}

	validator := config.NewValidator()
	if err := validator.ValidatePlatform(acc, req.Target.Platform); err != nil {
		return nil, err
	}

	for k, v := range a.Settings {
		acc.Defs[k] = v
	}
	acc.Defs["platform"] = req.Target.Platform
	acc.Defs["location"] = req.Target.Location
	acc.Defs["dist"] = dist
	acc.Defs["version"] = version
	acc.Defs["arch"] = arch

	derived, err := DeriveDefs(req, acc.Defs, a.DNS)
	if err != nil {
		return nil, err
	}
	acc.Defs = derived

	ApplyDefines(acc.Defs, req.Defines)

	iso, err := ResolveISO(acc.Defs, isoLocal || a.ForceLocalISO, a.IsoDir, dist, version, arch, a.IsoClient)
	if err != nil {
		return nil, err
	}
	acc.Defs["iso_url"] = iso.URL
	if iso.Checksum != "" {
		acc.Defs["iso_checksum"] = iso.Checksum
	}

	if err := validator.CheckRequiredFiles(acc, a.InstallerRoot); err != nil {
		return nil, err
	}

	if needsSecrets(acc) && a.Credentials == nil {
		return nil, oerrors.WithKind(oerrors.SecretUnavailable,
			fmt.Errorf("buildassembly: build references secrets but no credential provider is configured"))
	}

	engine := template.New(acc.Defs, credentialSecretAdapter(a.Credentials), a.DNS)
	if err := RunTemplateEngine(acc, engine); err != nil {
		return nil, err
	}

	doc := AssembleDocument(acc)

	if a.CredentialSource == "local" && a.Credentials != nil {
		doc, err = ResolveLocalEmbeddedReferences(doc, a.Credentials)
		if err != nil {
			return nil, err
		}
	}

	if req.Reprovision {
		doc = ApplyNullBuilder(doc)
	}

	return &Assembled{Accumulator: acc, Document: doc, Dist: dist, Version: version, Arch: arch}, nil
}

// needsSecrets reports whether any config/provisioner body plausibly
// contains a credential marker, a cheap pre-check so a build with no
// secrets at all never requires a provider to be configured.
func needsSecrets(acc *config.Accumulator) bool {
	if mapContainsMarker(acc.Defs) || mapContainsMarker(acc.Config) ||
		mapContainsMarker(acc.Variables) || mapContainsMarker(acc.Evars) ||
		sliceContainsMarker(acc.Provisioners) || sliceContainsMarker(acc.PreProvisioners) ||
		sliceContainsMarker(acc.PostProvisioners) {
		return true
	}
	for _, f := range acc.Files {
		if template.ContainsCredentialMarker(f.Dest) || credentials.HasEmbeddedReference(f.Dest) {
			return true
		}
		for _, src := range f.Sources {
			if template.ContainsCredentialMarker(src) || credentials.HasEmbeddedReference(src) {
				return true
			}
		}
	}
	return false
}

func mapContainsMarker(m map[string]any) bool {
	for _, v := range m {
		if valueContainsMarker(v) {
			return true
		}
	}
	return false
}

func sliceContainsMarker(list []map[string]any) bool {
	for _, m := range list {
		if mapContainsMarker(m) {
			return true
		}
	}
	return false
}

func valueContainsMarker(v any) bool {
	switch val := v.(type) {
	case string:
		return template.ContainsCredentialMarker(val) || credentials.HasEmbeddedReference(val)
	case map[string]any:
		return mapContainsMarker(val)
	case []any:
		for _, item := range val {
			if valueContainsMarker(item) {
				return true
			}
		}
	}
	return false
}

// credentialSecretAdapter narrows a full Provider down to the
// SecretProvider interface the Template Engine depends on, returning nil
// cleanly when no provider is configured (actions 5/8/9/10 treat a nil
// SecretProvider as "secrets unavailable" themselves).
func credentialSecretAdapter(p credentials.Provider) template.SecretProvider {
	if p == nil {
		return nil
	}
	return p
}
