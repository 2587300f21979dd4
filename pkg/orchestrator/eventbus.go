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
	"time"

	"github.com/google/uuid"
)

// EventKind is one of a Build's lifecycle event kinds.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventStatus    EventKind = "status"
	EventProgress  EventKind = "progress"
	EventLog       EventKind = "log"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Event is one published lifecycle notification for a build.
type Event struct {
	BuildID   string
	Seq       uint64
	Kind      EventKind
	Timestamp time.Time
	Payload   any
}

// StatusPayload is an Event's Payload for EventStatus.
type StatusPayload struct {
	From State
	To   State
}

// ProgressPayload is an Event's Payload for EventProgress.
type ProgressPayload struct {
	Step string
}

const defaultSubscriberHighWater = 256

// Subscriber receives events from an EventBus, optionally filtered to one
// build id.
type Subscriber struct {
	id      string
	buildID string
	ch      chan Event

	mu      sync.Mutex
	dropped bool
}

// Events returns the channel events are delivered on. It is closed when
// the subscriber is removed, either explicitly or after overflowing its
// bounded queue.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// EventBus fans out published events to subscribers, each through its own
// bounded channel so a slow subscriber never blocks the publisher.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	highWater   int
}

// NewEventBus returns a bus whose subscriber channels hold up to
// highWater buffered events before the subscriber is dropped. Zero means
// the default of 256.
func NewEventBus(highWater int) *EventBus {
	if highWater <= 0 {
		highWater = defaultSubscriberHighWater
	}
	return &EventBus{subscribers: make(map[string]*Subscriber), highWater: highWater}
}

// Subscribe registers a subscriber, optionally filtered to buildID ("" for
// every build).
func (b *EventBus) Subscribe(buildID string) *Subscriber {
	sub := &Subscriber{id: uuid.New().String(), buildID: buildID, ch: make(chan Event, b.highWater)}
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call more than
// once.
func (b *EventBus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subscribers[sub.id]
	if ok {
		delete(b.subscribers, sub.id)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
	}
}

// SubscriberCountFor reports how many subscribers are attached to buildID
// specifically (not counting subscribers to every build).
func (b *EventBus) SubscriberCountFor(buildID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, sub := range b.subscribers {
		if sub.buildID == buildID {
			n++
		}
	}
	return n
}

// Publish delivers e to every subscriber whose filter matches. Delivery is
// non-blocking: a subscriber whose channel is full is dropped rather than
// stalling the publisher.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	matched := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.buildID == "" || sub.buildID == e.BuildID {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		select {
		case sub.ch <- e:
		default:
			b.Unsubscribe(sub)
		}
	}
}
