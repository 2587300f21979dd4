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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesFully_CaseInsensitiveFullMatch(t *testing.T) {
	ok, err := matchesFully("vmware", "VMware")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = matchesFully("vmware", "vmware-extra")
	require.NoError(t, err)
	assert.False(t, ok, "full match, not substring")

	ok, err = matchesFully("9\\..*", "9.5")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestApplySpecificSections_NestedOverrides mirrors spec end-to-end scenario
// 2: a version_specific override sets cpu_cores=4 and nests a
// platform_specific override that adds cpu_sockets=2 when the target
// platform is vmware.
func TestApplySpecificSections_NestedOverrides(t *testing.T) {
	acc := NewAccumulator()
	acc.Defs["platform"] = "vmware"
	acc.Defs["version"] = "9.5"
	acc.Defs["cpu_cores"] = 2

	layer := ConfigLayer{
		VersionSpecific: []SpecificOverride{
			{
				Pattern: "9\\..*",
				Body: ConfigLayer{
					Defs: map[string]any{"cpu_cores": 4},
					PlatformSpecific: []SpecificOverride{
						{Pattern: "vmware", Body: ConfigLayer{Defs: map[string]any{"cpu_sockets": 2}}},
					},
				},
			},
		},
	}

	require.NoError(t, applySpecificSections(acc, layer, nil))
	assert.Equal(t, 4, acc.Defs["cpu_cores"])
	assert.Equal(t, 2, acc.Defs["cpu_sockets"])
}

func TestApplySpecificSections_NonMatchingPatternSkipped(t *testing.T) {
	acc := NewAccumulator()
	acc.Defs["platform"] = "kvm"

	layer := ConfigLayer{
		PlatformSpecific: []SpecificOverride{
			{Pattern: "vmware", Body: ConfigLayer{Defs: map[string]any{"cpu_sockets": 2}}},
		},
	}

	require.NoError(t, applySpecificSections(acc, layer, nil))
	_, present := acc.Defs["cpu_sockets"]
	assert.False(t, present)
}

func TestApplySpecificSections_LaterMatchOverlaysEarlier(t *testing.T) {
	acc := NewAccumulator()
	acc.Defs["platform"] = "vmware"

	layer := ConfigLayer{
		PlatformSpecific: []SpecificOverride{
			{Pattern: "vm.*", Body: ConfigLayer{Defs: map[string]any{"driver": "first"}}},
			{Pattern: "vmware", Body: ConfigLayer{Defs: map[string]any{"driver": "second"}}},
		},
	}

	require.NoError(t, applySpecificSections(acc, layer, nil))
	assert.Equal(t, "second", acc.Defs["driver"])
}

func TestApplySpecificSections_PlatformAndVersionBothApply(t *testing.T) {
	acc := NewAccumulator()
	acc.Defs["platform"] = "vmware"
	acc.Defs["version"] = "9.5"

	layer := ConfigLayer{
		VersionSpecific: []SpecificOverride{
			{Pattern: "9\\..*", Body: ConfigLayer{Defs: map[string]any{"from_version": true}}},
		},
		PlatformSpecific: []SpecificOverride{
			{Pattern: "vmware", Body: ConfigLayer{Defs: map[string]any{"from_platform": true}}},
		},
	}

	require.NoError(t, applySpecificSections(acc, layer, nil))
	assert.Equal(t, true, acc.Defs["from_platform"])
	assert.Equal(t, true, acc.Defs["from_version"])
}
