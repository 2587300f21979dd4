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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMd5Crypt_Format(t *testing.T) {
	out, err := Md5Crypt("hunter2")
	require.NoError(t, err)
	parts := strings.Split(out, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "1", parts[1])
	assert.Len(t, parts[2], 8)
	assert.Len(t, parts[3], 22)
}

func TestSha256Crypt_Format(t *testing.T) {
	out, err := Sha256Crypt("hunter2")
	require.NoError(t, err)
	parts := strings.Split(out, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "5", parts[1])
	assert.Len(t, parts[2], 8)
	assert.Len(t, parts[3], 43)
}

func TestSha512Crypt_Format(t *testing.T) {
	out, err := Sha512Crypt("hunter2")
	require.NoError(t, err)
	parts := strings.Split(out, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "6", parts[1])
	assert.Len(t, parts[2], 8)
	assert.Len(t, parts[3], 86)
}

func TestCrypt_SaltDiffersAcrossCalls(t *testing.T) {
	a, err := Md5Crypt("hunter2")
	require.NoError(t, err)
	b, err := Md5Crypt("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSha256CryptWithSalt_MatchesReferenceVector(t *testing.T) {
	out := sha256CryptWithSalt("Hello world!", "saltstring")
	assert.Equal(t, "$5$saltstring$5B8vYYiY.CVt1RlTTf8KbXBH3hsxY/GNooZaBBGWEc5", out)
}

func TestSha512CryptWithSalt_MatchesReferenceVector(t *testing.T) {
	out := sha512CryptWithSalt("Hello world!", "saltstring")
	assert.Equal(t, "$6$saltstring$svn8UoSVapNtMuq1ukKS4tPQd8iKwSMHWjl/O817G3uBnIFNjnQJuesI68u4OTLiBFdcbYEdFCoEOfaS7uu9kk0", out)
}

func TestCrypt_AlphabetOnlyInEncodedSegments(t *testing.T) {
	out, err := Sha512Crypt("hunter2")
	require.NoError(t, err)
	parts := strings.Split(out, "$")
	for _, c := range parts[2] + parts[3] {
		assert.True(t, strings.ContainsRune(cryptAlphabet, c), "unexpected character %q", c)
	}
}
