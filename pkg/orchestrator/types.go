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

// Package orchestrator implements the Build Orchestrator: a priority queue
// of submitted builds, a fixed worker pool that resolves and
// runs each one under Packer, and an event bus publishing their lifecycle
// to subscribers.
package orchestrator

import (
	"sync"
	"time"

	"github.com/sshoecraft/osimager/pkg/buildassembly"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
)

// State is one point in a Build's lifecycle transition table.
type State string

const (
	StateQueued    State = "queued"
	StatePreparing State = "preparing"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimedOut  State = "timed_out"
)

// IsTerminal reports whether s is a state a Build never leaves.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimedOut:
		return true
	default:
		return false
	}
}

// BuildRequest is the input to Submit.
type BuildRequest struct {
	Target      buildassembly.Target
	Name        string
	IP          string
	Defines     map[string]string
	Priority    int
	Timeout     time.Duration
	Keep        bool
	Reprovision bool
	OnError     string
	Debug       bool
	Force       bool
	Timestamp   bool
}

// Snapshot is a point-in-time, externally-safe copy of a Build. The
// orchestrator's registry is exclusively its own; every external read goes
// through a Snapshot rather than a pointer into live state.
type Snapshot struct {
	ID          string
	Request     BuildRequest
	State       State
	SubmittedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	ExitCode    int
	Err         string
	Kind        oerrors.Kind
	Workspace   string

	// DocumentDigest content-addresses the assembled Packer document once
	// writeDocument has written it to the workspace. Empty until then.
	DocumentDigest string
}

// Build is the orchestrator's internal record for one submitted build.
type Build struct {
	ID          string
	Request     BuildRequest
	SubmittedAt time.Time

	mu        sync.Mutex
	state     State
	startedAt time.Time
	endedAt   time.Time
	exitCode  int
	err       error
	workspace string

	seq uint64

	cancelCh   chan struct{}
	cancelOnce sync.Once

	logRing        *ringBuffer
	documentDigest string
}

func newBuild(id string, req BuildRequest, ringSize int) *Build {
	return &Build{
		ID:          id,
		Request:     req,
		SubmittedAt: time.Now(),
		state:       StateQueued,
		cancelCh:    make(chan struct{}),
		logRing:     newRingBuffer(ringSize),
	}
}

// requestCancel signals cancellation. Idempotent: a second call is a no-op.
func (b *Build) requestCancel() {
	b.cancelOnce.Do(func() { close(b.cancelCh) })
}

func (b *Build) cancelled() bool {
	select {
	case <-b.cancelCh:
		return true
	default:
		return false
	}
}

func (b *Build) nextSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq
}

// Snapshot copies the Build's externally-visible fields.
func (b *Build) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	errStr := ""
	var kind oerrors.Kind
	if b.err != nil {
		errStr = b.err.Error()
		kind, _ = oerrors.KindOf(b.err)
	}
	return Snapshot{
		ID:             b.ID,
		Request:        b.Request,
		State:          b.state,
		SubmittedAt:    b.SubmittedAt,
		StartedAt:      b.startedAt,
		EndedAt:        b.endedAt,
		ExitCode:       b.exitCode,
		Err:            errStr,
		Kind:           kind,
		Workspace:      b.workspace,
		DocumentDigest: b.documentDigest,
	}
}

func (b *Build) setState(s State) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.state
	b.state = s
	switch {
	case s == StateRunning:
		b.startedAt = time.Now()
	case s.IsTerminal():
		b.endedAt = time.Now()
	}
	return prev
}

func (b *Build) setResult(exitCode int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exitCode = exitCode
	b.err = err
}

func (b *Build) setWorkspace(ws string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workspace = ws
}

func (b *Build) setDocumentDigest(d string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.documentDigest = d
}

// compareAndTransition moves the build from "from" to "to" only if it is
// still in "from", reporting whether the move happened. It is the gate
// that lets Cancel and the worker pool race over who claims a queued
// build without double-publishing its terminal transition.
func (b *Build) compareAndTransition(from, to State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != from {
		return false
	}
	b.state = to
	switch {
	case to == StateRunning:
		b.startedAt = time.Now()
	case to.IsTerminal():
		b.endedAt = time.Now()
	}
	return true
}

func (b *Build) getState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
