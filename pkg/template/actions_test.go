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

package template

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

func TestSpliceKey_MatchesSoleMarker(t *testing.T) {
	key, ok := spliceKey("  [>packages<]  ")
	require.True(t, ok)
	assert.Equal(t, "packages", key)
}

func TestSpliceKey_RejectsEmbeddedMarker(t *testing.T) {
	_, ok := spliceKey("prefix-[>packages<]")
	assert.False(t, ok)
}

func TestSplitPathKey_LastColonSplits(t *testing.T) {
	path, key := splitPathKey("secret/data/app:password")
	assert.Equal(t, "secret/data/app", path)
	assert.Equal(t, "password", key)
}

func TestSplitPathKey_NoColonYieldsEmptyKey(t *testing.T) {
	path, key := splitPathKey("secret/data/app")
	assert.Equal(t, "secret/data/app", path)
	assert.Equal(t, "", key)
}

func TestSplitList_CommaAndWhitespaceSeparators(t *testing.T) {
	got := splitList("vim, curl\tgit\nhtop")
	assert.Equal(t, []any{"vim", "curl", "git", "htop"}, got)
}

func TestSubstitute_NoMatchReturnsUnchanged(t *testing.T) {
	out, err := substitute("plain text", reFullValue, func(string) (any, bool, error) {
		t.Fatal("resolve should not be called")
		return nil, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestSubstitute_WholeMatchPreservesType(t *testing.T) {
	out, err := substitute("%>count<%", reFullValue, func(key string) (any, bool, error) {
		return 7, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestSubstitute_PartialMatchStringifies(t *testing.T) {
	out, err := substitute("n=%>count<%!", reFullValue, func(key string) (any, bool, error) {
		return 7, true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "n=7!", out)
}

func TestSubstitute_MultipleMatchesAllResolved(t *testing.T) {
	out, err := substitute("%>a<%-%>b<%", reFullValue, func(key string) (any, bool, error) {
		if key == "a" {
			return "x", true, nil
		}
		return "y", true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "x-y", out)
}

func TestIsWholeMatch_TrueOnlyWhenEntireTrimmedStringMatches(t *testing.T) {
	m := reFullValue.FindStringIndex("%>a<%")
	require.NotNil(t, m)
	assert.True(t, isWholeMatch("%>a<%", m))
	assert.False(t, isWholeMatch("x%>a<%", reFullValue.FindStringIndex("x%>a<%")))
}

func TestActionBasename_MissingKeyInsideStringIsEmpty(t *testing.T) {
	e := New(map[string]any{}, nil, nil)
	got, err := e.Walk("prefix-+>missing<+-suffix")
	require.NoError(t, err)
	assert.Equal(t, "prefix--suffix", got)
}

func TestActionBasename_WholeValueMissingKeyIsFatal(t *testing.T) {
	e := New(map[string]any{}, nil, nil)
	_, err := e.Walk("+>missing<+")
	require.Error(t, err)
	kind, ok := oerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.UnresolvedVariable, kind)
}

func TestActionDNS_NilResolverYieldsEmpty(t *testing.T) {
	e := New(map[string]any{"host": "example.com"}, nil, nil)
	got, err := e.Walk("*>host<*")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestActionDNS_WholeValueMissingKeyIsFatal(t *testing.T) {
	e := New(map[string]any{}, nil, nil)
	_, err := e.Walk("*>missing<*")
	require.Error(t, err)
	kind, ok := oerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, oerrors.UnresolvedVariable, kind)
}

type alwaysFailDNS struct{}

func (alwaysFailDNS) LookupHost(string) (string, error) {
	return "", fmt.Errorf("dns lookup failed")
}

func TestActionDNS_LookupFailureIsNonFatal(t *testing.T) {
	e := New(map[string]any{"host": "example.com"}, nil, alwaysFailDNS{})
	got, err := e.Walk("*>host<*")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
