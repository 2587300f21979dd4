/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

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

// Package controlplane streams Build Orchestrator lifecycle events to
// observers over a single long-lived HTTP connection: newline-delimited
// JSON in both directions rather than a websocket upgrade. See DESIGN.md
// for why no websocket library from the pack was wired in here.
package controlplane

import (
	"bufio"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sshoecraft/osimager/pkg/logging"
	"github.com/sshoecraft/osimager/pkg/orchestrator"
)

const heartbeatInterval = 30 * time.Second

// clientMessage is one line of client input. The only message types an
// observer sends are "ping" and "subscribe_build".
type clientMessage struct {
	Type    string `json:"type"`
	BuildID string `json:"build_id"`
}

// serverMessage is one line of server output.
type serverMessage struct {
	Type    string `json:"type"`
	BuildID string `json:"build_id,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Server streams Orchestrator lifecycle events to observers. Each HTTP
// request is one independent observer connection; ServeHTTP blocks for
// the connection's lifetime.
type Server struct {
	Orch *orchestrator.Orchestrator
}

func NewServer(orch *orchestrator.Orchestrator) *Server {
	return &Server{Orch: orch}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	conn := &connection{w: w, flusher: flusher, enc: json.NewEncoder(w)}

	sub, snapshots := s.Orch.Subscribe()
	defer func() { s.Orch.Unsubscribe(sub) }()
	_ = conn.writeInitialStatus(snapshots)

	incoming := make(chan clientMessage)
	go readClientMessages(r, incoming)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	missedHeartbeats := 0
	for {
		select {
		case <-r.Context().Done():
			return

		case <-ticker.C:
			if missedHeartbeats > 0 {
				logging.Debug("controlplane: observer missed a heartbeat pong, closing")
				return
			}
			missedHeartbeats++
			if err := conn.writeHeartbeat(); err != nil {
				return
			}

		case msg, open := <-incoming:
			if !open {
				// Client closed or half-closed its write side; the
				// connection and its event relay stay alive, it simply
				// stops accepting further client messages.
				incoming = nil
				continue
			}
			missedHeartbeats = 0
			if msg.Type == "subscribe_build" {
				s.Orch.Unsubscribe(sub)
				newSub, snap, found := s.Orch.SubscribeBuild(msg.BuildID)
				if !found {
					continue
				}
				sub = newSub
				if err := conn.writeInitialStatus(snap); err != nil {
					return
				}
			}

		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := conn.writeEvent(s.Orch, ev); err != nil {
				return
			}
		}
	}
}

// readClientMessages decodes newline-delimited JSON from the request body
// until it closes, forwarding each line to out. Malformed lines are
// skipped rather than ending the connection.
func readClientMessages(r *http.Request, out chan<- clientMessage) {
	defer close(out)
	scanner := bufio.NewScanner(r.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg clientMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		out <- msg
	}
}

// connection serializes writes to the response body: the event-relay case
// and the heartbeat/initial-status writes all touch the same encoder.
type connection struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	enc     *json.Encoder
}

func (c *connection) write(msg serverMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(msg); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *connection) writeInitialStatus(data any) error {
	return c.write(serverMessage{Type: "initial_status", Data: data})
}

func (c *connection) writeHeartbeat() error {
	return c.write(serverMessage{Type: "ping"})
}

func (c *connection) writeEvent(orch *orchestrator.Orchestrator, ev orchestrator.Event) error {
	return c.write(serverMessage{Type: string(ev.Kind), BuildID: ev.BuildID, Data: eventData(orch, ev)})
}

// eventData renders an Event's payload for the wire. Terminal events look
// up the build's final Snapshot rather than relying on the payload alone,
// since the terminal message carries error_message/kind and those live on
// the Snapshot, not the event payload.
func eventData(orch *orchestrator.Orchestrator, ev orchestrator.Event) any {
	switch ev.Kind {
	case orchestrator.EventStatus:
		if p, ok := ev.Payload.(orchestrator.StatusPayload); ok {
			return map[string]any{"from": p.From, "to": p.To}
		}
	case orchestrator.EventProgress:
		if p, ok := ev.Payload.(orchestrator.ProgressPayload); ok {
			return map[string]any{"step": p.Step}
		}
	case orchestrator.EventLog:
		if p, ok := ev.Payload.(orchestrator.LogEntry); ok {
			return map[string]any{"line": p.Line}
		}
	case orchestrator.EventCompleted, orchestrator.EventFailed, orchestrator.EventCancelled:
		if snap, ok := orch.Get(ev.BuildID); ok {
			return terminalData(snap)
		}
	}
	return nil
}

func terminalData(snap orchestrator.Snapshot) map[string]any {
	data := map[string]any{
		"state":     string(snap.State),
		"exit_code": snap.ExitCode,
	}
	if snap.Err != "" {
		data["error_message"] = snap.Err
	}
	if snap.Kind != "" {
		data["kind"] = string(snap.Kind)
	}
	return data
}
