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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// OutputFormatter formats --list/--avail/--list-platforms/--dump-defs/
// --dump-config output for display. Machine-readable output always goes to
// stdout (see pkg/logging's Output/OutputContext split), so this formatter
// writes there directly rather than through the logger.
type OutputFormatter struct {
	format string // text or json
	out    io.Writer
}

// NewOutputFormatter creates a formatter writing to stdout.
func NewOutputFormatter(format string) *OutputFormatter {
	return &OutputFormatter{format: format, out: os.Stdout}
}

// SpecEntry is one row of a --list/--avail listing: a resolved
// (dist, version, arch) tuple and the platforms it is eligible to run on.
type SpecEntry struct {
	Dist      string   `json:"dist"`
	Version   string   `json:"version"`
	Arch      string   `json:"arch"`
	Platforms []string `json:"platforms,omitempty"`
}

// DisplaySpecList renders the Spec Index's expanded entries for --list/--avail.
func (f *OutputFormatter) DisplaySpecList(entries []SpecEntry) error {
	switch f.format {
	case "json":
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "table", "text", "":
		return f.displaySpecTable(entries)
	default:
		return fmt.Errorf("unknown output format: %s (supported: table, json)", f.format)
	}
}

func (f *OutputFormatter) displaySpecTable(entries []SpecEntry) error {
	w := tabwriter.NewWriter(f.out, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, "DIST\tVERSION\tARCH\tPLATFORMS"); err != nil {
		return err
	}

	for _, e := range entries {
		platforms := "any"
		if len(e.Platforms) > 0 {
			sorted := append([]string(nil), e.Platforms...)
			sort.Strings(sorted)
			platforms = strings.Join(sorted, ",")
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Dist, e.Version, e.Arch, platforms); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f.out, "\n%d spec(s)\n", len(entries))
	return err
}

// DisplayPlatformList renders --list-platforms output: the platform names
// known to the config tree, sorted.
func (f *OutputFormatter) DisplayPlatformList(platforms []string) error {
	sorted := append([]string(nil), platforms...)
	sort.Strings(sorted)

	switch f.format {
	case "json":
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(sorted)
	case "table", "text", "":
		for _, p := range sorted {
			if _, err := fmt.Fprintln(f.out, p); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s (supported: table, json)", f.format)
	}
}

// DisplayDefs renders --list-defs/--dump-defs output as indented JSON. For
// --dump-defs it is the final defs map of a resolved build, after derived
// defs and --define overrides have been applied; for --list-defs it is each
// platform file's own defs, keyed by platform name.
func (f *OutputFormatter) DisplayDefs(defs map[string]any) error {
	switch f.format {
	case "", "json", "table", "text":
		enc := json.NewEncoder(f.out)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	default:
		return fmt.Errorf("unknown output format: %s", f.format)
	}
}

// DisplayConfig renders --dump-config output: the assembled Packer document
// (variables, provisioners, builders) as indented JSON.
func (f *OutputFormatter) DisplayConfig(sections map[string]any) error {
	enc := json.NewEncoder(f.out)
	enc.SetIndent("", "  ")
	return enc.Encode(sections)
}
