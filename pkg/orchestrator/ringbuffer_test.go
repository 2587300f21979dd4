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

package orchestrator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBuffer_SnapshotPreservesOrderBeforeWrap(t *testing.T) {
	r := newRingBuffer(5)
	r.Append("stdout", "one")
	r.Append("stdout", "two")
	r.Append("stderr", "three")

	entries := r.Snapshot()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "one", entries[0].Line)
		assert.Equal(t, "two", entries[1].Line)
		assert.Equal(t, "three", entries[2].Line)
		assert.Equal(t, "stderr", entries[2].Stream)
	}
}

func TestRingBuffer_OverwritesOldestOnWrap(t *testing.T) {
	r := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		r.Append("stdout", fmt.Sprintf("line-%d", i))
	}
	entries := r.Snapshot()
	if assert.Len(t, entries, 3) {
		assert.Equal(t, "line-2", entries[0].Line)
		assert.Equal(t, "line-3", entries[1].Line)
		assert.Equal(t, "line-4", entries[2].Line)
	}
}

func TestRingBuffer_DetectsLevelFromPrefix(t *testing.T) {
	r := newRingBuffer(10)
	e := r.Append("stderr", "ERROR: build failed")
	assert.Equal(t, "error", e.Level)

	e = r.Append("stdout", "WARN: deprecated flag")
	assert.Equal(t, "warn", e.Level)

	e = r.Append("stdout", "==> vmware-iso: waiting")
	assert.Equal(t, "info", e.Level)
}

func TestRingBuffer_AppendRedactsSensitivePatterns(t *testing.T) {
	r := newRingBuffer(10)
	e := r.Append("stdout", "password=hunter2 connecting")
	assert.NotContains(t, e.Line, "hunter2")
}

func TestRingBuffer_DefaultCapacityWhenZero(t *testing.T) {
	r := newRingBuffer(0)
	assert.Len(t, r.entries, defaultLogRingSize)
}
