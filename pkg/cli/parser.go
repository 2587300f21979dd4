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

// Package cli provides utilities for parsing, validating, and formatting the
// mkosimage/rfosimage command-line input and output.
//
//   - Parsing: --define/--set key=value flags into structured maps
//   - Validation: rejecting invalid flag combinations before resolution starts
//   - Output: formatting spec/platform/defs/config listings for display
package cli

import (
	"fmt"
	"strings"
)

// Parser handles parsing of CLI input into structured data.
type Parser struct{}

// NewParser creates a new CLI parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseKeyValuePairs parses key=value pairs from CLI flags.
// Returns a map and an error if any pair is malformed.
//
// Example:
//
//	pairs := []string{"key1=value1", "key2=value2"}
//	result, err := parser.ParseKeyValuePairs(pairs)
//	// result == map[string]string{"key1": "value1", "key2": "value2"}
func (p *Parser) ParseKeyValuePairs(pairs []string) (map[string]string, error) {
	result := make(map[string]string, len(pairs))

	for _, pair := range pairs {
		key, value, err := ParseKeyValue(pair)
		if err != nil {
			return nil, fmt.Errorf("invalid pair %q: %w", pair, err)
		}
		result[key] = value
	}

	return result, nil
}

// ParseKeyValue parses a single key=value string.
// Returns the key, value, and an error if the format is invalid.
func ParseKeyValue(pair string) (string, string, error) {
	parts := strings.SplitN(pair, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected format key=value, got %q", pair)
	}

	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])

	if key == "" {
		return "", "", fmt.Errorf("key cannot be empty")
	}

	return key, value, nil
}

// ParseDefines parses repeated --define key=value flags, the def overrides
// applied after resolution and before template substitution.
func (p *Parser) ParseDefines(defines []string) (map[string]string, error) {
	if len(defines) == 0 {
		return nil, nil
	}
	return p.ParseKeyValuePairs(defines)
}

// ParseSettings parses repeated --set key=value flags, used to override
// osimager.conf settings for a single invocation.
func (p *Parser) ParseSettings(settings []string) (map[string]string, error) {
	if len(settings) == 0 {
		return nil, nil
	}
	return p.ParseKeyValuePairs(settings)
}

// ValidateKeyValueFormat checks if a string is in key=value format without parsing.
// Returns true if the format is valid, false otherwise.
func ValidateKeyValueFormat(pair string) bool {
	parts := strings.SplitN(pair, "=", 2)
	if len(parts) != 2 {
		return false
	}
	return strings.TrimSpace(parts[0]) != ""
}
