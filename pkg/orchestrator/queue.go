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
	"container/heap"
	"sync"
)

// queueItem is one entry in the priority heap: higher Priority pops first,
// ties broken by Seq (earlier submission first).
type queueItem struct {
	build    *Build
	priority int
	seq      int64
}

// heapSlice is container/heap's required interface over queueItem, ordered
// as a max-heap on priority.
type heapSlice []*queueItem

func (h heapSlice) Len() int { return len(h) }
func (h heapSlice) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *heapSlice) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// BuildQueue is a blocking max-heap priority queue of pending Builds.
type BuildQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  heapSlice
	seq    int64
	closed bool
}

// NewBuildQueue returns an empty queue.
func NewBuildQueue() *BuildQueue {
	q := &BuildQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues b at priority, to be popped ahead of any lower-priority or
// later-submitted build.
func (q *BuildQueue) Push(b *Build, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	heap.Push(&q.items, &queueItem{build: b, priority: priority, seq: q.seq})
	q.cond.Signal()
}

// Pop blocks until the highest-priority build is available or the queue is
// closed, in which case ok is false.
func (q *BuildQueue) Pop() (build *Build, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.build, true
}

// Close stops the queue from accepting new items and wakes every blocked
// Pop so workers can observe shutdown.
func (q *BuildQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of builds currently queued.
func (q *BuildQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
