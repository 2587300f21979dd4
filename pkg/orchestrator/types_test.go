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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

func TestState_IsTerminal(t *testing.T) {
	assert.False(t, StateQueued.IsTerminal())
	assert.False(t, StatePreparing.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.True(t, StateTimedOut.IsTerminal())
}

func TestBuild_RequestCancelIsIdempotent(t *testing.T) {
	b := newTestBuild("x")
	assert.False(t, b.cancelled())
	b.requestCancel()
	assert.True(t, b.cancelled())
	assert.NotPanics(t, func() { b.requestCancel() })
	assert.True(t, b.cancelled())
}

func TestBuild_CompareAndTransitionOnlyMovesFromExpectedState(t *testing.T) {
	b := newTestBuild("x")
	assert.True(t, b.compareAndTransition(StateQueued, StatePreparing))
	assert.Equal(t, StatePreparing, b.getState())

	assert.False(t, b.compareAndTransition(StateQueued, StateCancelled))
	assert.Equal(t, StatePreparing, b.getState())

	assert.True(t, b.compareAndTransition(StatePreparing, StateRunning))
	assert.Equal(t, StateRunning, b.getState())
}

func TestBuild_NextSeqIsMonotonicUnderConcurrency(t *testing.T) {
	b := newTestBuild("x")
	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- b.nextSeq()
		}()
	}
	wg.Wait()
	close(seen)

	set := make(map[uint64]bool)
	for s := range seen {
		assert.False(t, set[s], "duplicate sequence number %d", s)
		set[s] = true
	}
	assert.Len(t, set, 100)
}

func TestBuild_SnapshotCopiesCurrentState(t *testing.T) {
	b := newTestBuild("x")
	b.setState(StateRunning)
	b.setWorkspace("/tmp/foo")
	b.setResult(7, assert.AnError)

	snap := b.Snapshot()
	assert.Equal(t, "x", snap.ID)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, "/tmp/foo", snap.Workspace)
	assert.Equal(t, 7, snap.ExitCode)
	assert.Equal(t, assert.AnError.Error(), snap.Err)
	assert.Equal(t, oerrors.Kind(""), snap.Kind)
}

func TestBuild_SnapshotCarriesErrorKind(t *testing.T) {
	b := newTestBuild("y")
	b.setResult(4, oerrors.WithKind(oerrors.PackerExitError, assert.AnError))

	snap := b.Snapshot()
	assert.Equal(t, oerrors.PackerExitError, snap.Kind)
	assert.Equal(t, assert.AnError.Error(), snap.Err)
}

func TestBuild_SnapshotCarriesDocumentDigest(t *testing.T) {
	b := newTestBuild("z")
	assert.Empty(t, b.Snapshot().DocumentDigest)

	b.setDocumentDigest("sha256:deadbeef")
	assert.Equal(t, "sha256:deadbeef", b.Snapshot().DocumentDigest)
}
