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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

func TestParseTarget_ValidThreeParts(t *testing.T) {
	target, err := ParseTarget("vmware/lab/rhel-9.5-x86_64")
	require.NoError(t, err)
	assert.Equal(t, Target{Platform: "vmware", Location: "lab", SpecKey: "rhel-9.5-x86_64"}, target)
}

func TestParseTarget_SpecKeyMayContainSlashes(t *testing.T) {
	target, err := ParseTarget("vmware/lab/rocky/9/x86_64")
	require.NoError(t, err)
	assert.Equal(t, "rocky/9/x86_64", target.SpecKey)
}

func TestParseTarget_TooFewParts(t *testing.T) {
	_, err := ParseTarget("vmware/lab")
	require.Error(t, err)
	kind, ok := oerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.ConfigParseError, kind)
}

func TestParseTarget_EmptyComponent(t *testing.T) {
	_, err := ParseTarget("vmware//rhel-9.5-x86_64")
	require.Error(t, err)
}

func TestTarget_String(t *testing.T) {
	target := Target{Platform: "vmware", Location: "lab", SpecKey: "rhel-9.5-x86_64"}
	assert.Equal(t, "vmware/lab/rhel-9.5-x86_64", target.String())
}
