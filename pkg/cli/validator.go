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

package cli

import (
	"fmt"
	"strings"
)

// onErrorModes are the Packer -on-error values mkosimage/rfosimage accept.
var onErrorModes = map[string]bool{
	"cleanup":                 true,
	"abort":                   true,
	"ask":                     true,
	"run-cleanup-provisioner": true,
}

// BuildCLIOptions is the parsed flag set for mkosimage/rfosimage, validated
// before the target triple is even resolved against the spec index.
type BuildCLIOptions struct {
	Target       string // platform/location/spec
	Name         string
	IP           string
	Defines      []string
	Settings     []string
	Keep         bool
	Temp         string
	Force        bool
	Debug        bool
	Verbose      bool
	LocalOnly    bool
	OnError      string
	FQDN         string
	Timestamp    bool
	Dry          bool
	DumpDefs     bool
	DumpConfig   bool
	List         bool
	ListPlatforms bool
	ListDefs     bool
}

// Validator checks CLI flag combinations before resolution starts.
type Validator struct{}

// NewValidator creates a new CLI flag validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateBuildOptions rejects malformed or mutually exclusive flag
// combinations for mkosimage/rfosimage.
func (v *Validator) ValidateBuildOptions(opts BuildCLIOptions) error {
	if opts.List || opts.ListPlatforms || opts.ListDefs {
		return nil // listing modes don't need a target or other flags
	}

	if opts.Target == "" {
		return fmt.Errorf("missing target: expected platform/location/spec")
	}

	if strings.Count(opts.Target, "/") != 2 {
		return fmt.Errorf("invalid target %q: expected platform/location/spec", opts.Target)
	}

	for _, part := range strings.Split(opts.Target, "/") {
		if part == "" {
			return fmt.Errorf("invalid target %q: platform/location/spec segments cannot be empty", opts.Target)
		}
	}

	if opts.OnError != "" && !onErrorModes[opts.OnError] {
		return fmt.Errorf("invalid --on_error mode %q (supported: cleanup, abort, ask, run-cleanup-provisioner)", opts.OnError)
	}

	if opts.DumpDefs && opts.DumpConfig {
		return fmt.Errorf("--dump-defs and --dump-config are mutually exclusive")
	}

	if (opts.DumpDefs || opts.DumpConfig) && opts.Dry {
		return fmt.Errorf("--dry cannot be combined with --dump-defs or --dump-config")
	}

	for _, define := range opts.Defines {
		if !ValidateKeyValueFormat(define) {
			return fmt.Errorf("invalid --define format %q: expected key=value", define)
		}
	}

	for _, setting := range opts.Settings {
		if !ValidateKeyValueFormat(setting) {
			return fmt.Errorf("invalid --set format %q: expected key=value", setting)
		}
	}

	return nil
}
