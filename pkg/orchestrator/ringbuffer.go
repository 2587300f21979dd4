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
	"strings"
	"sync"
	"time"

	"github.com/sshoecraft/osimager/pkg/logging"
)

const defaultLogRingSize = 10000

// LogEntry is one captured line of child-process output.
type LogEntry struct {
	Seq    uint64
	Time   time.Time
	Stream string
	Level  string
	Line   string
}

// ringBuffer retains the most recent entries for one build, overwriting
// the oldest when full. Append never blocks: there is no backpressure
// between the reader goroutine and a slow consumer of Snapshot.
type ringBuffer struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
	seq     uint64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultLogRingSize
	}
	return &ringBuffer{entries: make([]LogEntry, capacity)}
}

// Append records one output line, redacted, and returns the entry.
func (r *ringBuffer) Append(stream, line string) LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry := LogEntry{
		Seq:    r.seq,
		Time:   time.Now(),
		Stream: stream,
		Level:  detectLevel(line),
		Line:   logging.RedactSensitivePatterns(line),
	}
	r.entries[r.next] = entry
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
	return entry
}

// Snapshot returns the retained entries in emission order.
func (r *ringBuffer) Snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]LogEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]LogEntry, len(r.entries))
	n := copy(out, r.entries[r.next:])
	copy(out[n:], r.entries[:r.next])
	return out
}

// detectLevel guesses a level from a recognizable line prefix, defaulting
// to "info" when nothing matches.
func detectLevel(line string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(line))
	switch {
	case strings.HasPrefix(trimmed, "ERROR") || strings.HasPrefix(trimmed, "FATAL"):
		return "error"
	case strings.HasPrefix(trimmed, "WARN"):
		return "warn"
	case strings.HasPrefix(trimmed, "DEBUG"):
		return "debug"
	default:
		return "info"
	}
}
