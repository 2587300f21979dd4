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

package config

import (
	"fmt"
	"os"
	"path/filepath"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// Validator checks a resolved Accumulator against the constraints that only
// become knowable once a location and a target platform are both in hand.
type Validator struct{}

// NewValidator creates a config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePlatform rejects a target platform that the accumulated location
// chain has restricted via its "platforms" key (§6.1, §7
// PlatformUnsupportedByLocation). A location with no platforms restriction
// accepts any platform.
func (v *Validator) ValidatePlatform(acc *Accumulator, platform string) error {
	if len(acc.Platforms) == 0 {
		return nil
	}
	for _, p := range acc.Platforms {
		if p == platform {
			return nil
		}
	}
	return oerrors.WithKind(oerrors.PlatformUnsupportedByLocation,
		fmt.Errorf("platform %q is not in this location's supported platforms %v", platform, acc.Platforms))
}

// CheckRequiredFiles verifies every required_files entry accumulated across
// the resolved chain exists on disk, rooted at installerRoot. The first
// missing entry fails with a MissingRequiredFile error carrying its
// description and download URL (§4.7).
func (v *Validator) CheckRequiredFiles(acc *Accumulator, installerRoot string) error {
	for _, rf := range acc.RequiredFiles {
		path := rf.File
		if rf.Location != "" {
			path = rf.Location
		}
		if !fileExists(installerRoot, path) {
			return oerrors.WithKind(oerrors.MissingRequiredFile,
				fmt.Errorf("required file %q missing: %s (download: %s)", path, rf.Description, rf.URL))
		}
	}
	return nil
}

func fileExists(root, relOrAbs string) bool {
	path := relOrAbs
	if root != "" && !filepath.IsAbs(relOrAbs) {
		path = filepath.Join(root, relOrAbs)
	}
	_, err := os.Stat(path)
	return err == nil
}
