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

// Package buildassembly computes derived defs, resolves ISOs, and
// assembles the Packer input document from a resolved Accumulator — the
// work that happens between config resolution and handing a build off to
// the orchestrator.
package buildassembly

import (
	"fmt"
	"strings"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// Target is a parsed "platform/location/spec" build target string.
type Target struct {
	Platform string
	Location string
	SpecKey  string
}

// ParseTarget splits a "P/L/S" target string into its three components.
func ParseTarget(s string) (Target, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Target{}, oerrors.WithKind(oerrors.ConfigParseError,
			fmt.Errorf("buildassembly: %q is not a valid platform/location/spec target", s))
	}
	return Target{Platform: parts[0], Location: parts[1], SpecKey: parts[2]}, nil
}

func (t Target) String() string {
	return t.Platform + "/" + t.Location + "/" + t.SpecKey
}

// Request is the caller-supplied build request: the target plus the
// optional overrides a caller may supply.
type Request struct {
	Target      Target
	Name        string
	IP          string
	Variables   map[string]string
	Defines     map[string]string
	Timeout     int
	Debug       bool
	DryRun      bool
	Priority    int
	Reprovision bool
}
