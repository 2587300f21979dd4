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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/sshoecraft/osimager/pkg/buildassembly"
	"github.com/sshoecraft/osimager/pkg/credentials"
	oerrors "github.com/sshoecraft/osimager/pkg/errors"
	"github.com/sshoecraft/osimager/pkg/installer"
	"github.com/sshoecraft/osimager/pkg/packer"
	"github.com/sshoecraft/osimager/pkg/template"
)

const (
	defaultWorkers         = 3
	defaultCancelGrace     = 30 * time.Second
	defaultRetentionWindow = 24 * time.Hour
)

// Orchestrator runs submitted builds through a fixed worker pool, each
// worker resolving, generating installer files for, and supervising a
// Packer invocation for one build at a time.
type Orchestrator struct {
	Assembler  *buildassembly.Assembler
	Supervisor *packer.Supervisor

	Workers         int
	CancelGrace     time.Duration
	RetentionWindow time.Duration
	LogRingSize     int

	// ExtraEnv is merged into every Packer child's environment, beneath
	// a build's own evars and any credential-derived variables.
	ExtraEnv map[string]string

	mu     sync.RWMutex
	builds map[string]*Build
	closed bool

	queue *BuildQueue
	bus   *EventBus

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New returns an Orchestrator ready to Start. Zero-valued tuning fields
// fall back to their documented defaults.
func New(assembler *buildassembly.Assembler, supervisor *packer.Supervisor) *Orchestrator {
	return &Orchestrator{
		Assembler:  assembler,
		Supervisor: supervisor,
		builds:     make(map[string]*Build),
		queue:      NewBuildQueue(),
		bus:        NewEventBus(0),
	}
}

func (o *Orchestrator) workers() int {
	if o.Workers <= 0 {
		return defaultWorkers
	}
	return o.Workers
}

func (o *Orchestrator) cancelGrace() time.Duration {
	if o.CancelGrace <= 0 {
		return defaultCancelGrace
	}
	return o.CancelGrace
}

func (o *Orchestrator) retentionWindow() time.Duration {
	if o.RetentionWindow <= 0 {
		return defaultRetentionWindow
	}
	return o.RetentionWindow
}

// Start spawns the worker pool. It returns once every worker has exited,
// which happens only after Shutdown closes the queue. Cancelling ctx
// cancels the builds in flight but does not wake workers idle on the queue.
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	o.mu.Lock()
	o.cancel = cancel
	o.group = group
	o.mu.Unlock()

	for i := 0; i < o.workers(); i++ {
		group.Go(func() error {
			o.workerLoop(groupCtx)
			return nil
		})
	}
	return group.Wait()
}

// Shutdown stops accepting new submissions, signals every active build to
// cancel, and waits up to ctx's deadline for workers to drain. Safe to call
// before Start has run: it simply closes the queue and returns.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	active := make([]*Build, 0, len(o.builds))
	for _, b := range o.builds {
		if !b.getState().IsTerminal() {
			active = append(active, b)
		}
	}
	group := o.group
	cancel := o.cancel
	o.mu.Unlock()

	for _, b := range active {
		b.requestCancel()
	}
	o.queue.Close()
	if cancel != nil {
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		if group != nil {
			done <- group.Wait()
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues req and returns the build's initial snapshot.
func (o *Orchestrator) Submit(req BuildRequest) (Snapshot, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return Snapshot{}, fmt.Errorf("orchestrator: shutting down, not accepting new submissions")
	}
	id := uuid.New().String()
	b := newBuild(id, req, o.LogRingSize)
	o.builds[id] = b
	o.mu.Unlock()

	o.publish(Event{BuildID: id, Seq: b.nextSeq(), Kind: EventCreated, Timestamp: time.Now(), Payload: req})
	o.queue.Push(b, req.Priority)
	return b.Snapshot(), nil
}

// Cancel requests that build id stop. Idempotent and non-blocking: a
// queued build is cancelled immediately, a running one observes the
// signal at its next suspension point.
func (o *Orchestrator) Cancel(id string) error {
	b, ok := o.getBuild(id)
	if !ok {
		return fmt.Errorf("orchestrator: unknown build %q", id)
	}
	b.requestCancel()
	if b.compareAndTransition(StateQueued, StateCancelled) {
		o.publishTransition(b, StateQueued, StateCancelled)
	}
	return nil
}

// Get returns a point-in-time snapshot of build id.
func (o *Orchestrator) Get(id string) (Snapshot, bool) {
	b, ok := o.getBuild(id)
	if !ok {
		return Snapshot{}, false
	}
	return b.Snapshot(), true
}

// Logs returns the retained log lines for build id, most recent K entries
// (capped at LogRingSize) in emission order.
func (o *Orchestrator) Logs(id string) ([]LogEntry, bool) {
	b, ok := o.getBuild(id)
	if !ok {
		return nil, false
	}
	return b.logRing.Snapshot(), true
}

// List returns a snapshot of every build currently retained.
func (o *Orchestrator) List() []Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Snapshot, 0, len(o.builds))
	for _, b := range o.builds {
		out = append(out, b.Snapshot())
	}
	return out
}

// Subscribe attaches a subscriber to every build's events, returning its
// channel alongside a snapshot of every build known at the instant of
// subscription, so a caller never misses a transition between the
// snapshot and the live feed.
func (o *Orchestrator) Subscribe() (*Subscriber, []Snapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	sub := o.bus.Subscribe("")
	snapshots := make([]Snapshot, 0, len(o.builds))
	for _, b := range o.builds {
		snapshots = append(snapshots, b.Snapshot())
	}
	return sub, snapshots
}

// SubscribeBuild attaches a subscriber filtered to one build id, returning
// its current snapshot alongside the live feed.
func (o *Orchestrator) SubscribeBuild(id string) (*Subscriber, Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.builds[id]
	if !ok {
		return nil, Snapshot{}, false
	}
	return o.bus.Subscribe(id), b.Snapshot(), true
}

// Unsubscribe detaches sub.
func (o *Orchestrator) Unsubscribe(sub *Subscriber) {
	o.bus.Unsubscribe(sub)
}

func (o *Orchestrator) getBuild(id string) (*Build, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.builds[id]
	return b, ok
}

func (o *Orchestrator) publish(e Event) {
	o.bus.Publish(e)
}

func (o *Orchestrator) publishProgress(b *Build, step string) {
	o.publish(Event{BuildID: b.ID, Seq: b.nextSeq(), Kind: EventProgress, Timestamp: time.Now(), Payload: ProgressPayload{Step: step}})
}

// publishTransition emits the generic status event for a from->to move,
// plus the kind-specific terminal event and cleanup when to is terminal.
func (o *Orchestrator) publishTransition(b *Build, from, to State) {
	now := time.Now()
	o.publish(Event{BuildID: b.ID, Seq: b.nextSeq(), Kind: EventStatus, Timestamp: now, Payload: StatusPayload{From: from, To: to}})
	if to.IsTerminal() {
		o.publish(Event{BuildID: b.ID, Seq: b.nextSeq(), Kind: terminalKind(to), Timestamp: now, Payload: StatusPayload{From: from, To: to}})
		o.cleanup(b)
	}
}

func terminalKind(to State) EventKind {
	switch to {
	case StateCompleted:
		return EventCompleted
	case StateCancelled:
		return EventCancelled
	default:
		return EventFailed
	}
}

// advance moves b to state to unconditionally and publishes the
// transition. Used past the Preparing boundary, where only the owning
// worker ever moves a build forward.
func (o *Orchestrator) advance(b *Build, to State) {
	from := b.setState(to)
	o.publishTransition(b, from, to)
}

func (o *Orchestrator) finishFailed(b *Build, err error) {
	b.setResult(-1, err)
	o.advance(b, StateFailed)
}

// cleanup runs once per build on its terminal transition: it removes the
// workspace unless the caller asked to keep it, then schedules the
// retention-window GC.
func (o *Orchestrator) cleanup(b *Build) {
	snap := b.Snapshot()
	if !snap.Request.Keep && snap.Workspace != "" {
		_ = os.RemoveAll(snap.Workspace)
	}
	o.scheduleRetention(b)
}

// scheduleRetention removes a terminated build from the registry once it
// has sat unread for the retention window, unless a subscriber is still
// attached to it, in which case the check is deferred rather than the
// build leaking forever.
func (o *Orchestrator) scheduleRetention(b *Build) {
	time.AfterFunc(o.retentionWindow(), func() {
		if o.bus.SubscriberCountFor(b.ID) > 0 {
			o.scheduleRetention(b)
			return
		}
		o.mu.Lock()
		delete(o.builds, b.ID)
		o.mu.Unlock()
	})
}

// workerLoop pops the highest-priority queued build, takes ownership of it
// if it hasn't already been cancelled out from under the queue, and runs
// it to a terminal state.
func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		b, ok := o.queue.Pop()
		if !ok {
			return
		}
		if !b.compareAndTransition(StateQueued, StatePreparing) {
			continue
		}
		o.publishTransition(b, StateQueued, StatePreparing)
		o.runBuild(ctx, b)
	}
}

// runBuild carries a build from Preparing through to a terminal state,
// checking for cancellation at each suspension point.
func (o *Orchestrator) runBuild(parent context.Context, b *Build) {
	if b.cancelled() {
		o.advance(b, StateCancelled)
		return
	}

	assembled, err := o.Assembler.Assemble(o.toAssemblyRequest(b))
	if err != nil {
		o.finishFailed(b, err)
		return
	}

	if b.cancelled() {
		o.advance(b, StateCancelled)
		return
	}

	workspace := workspaceFor(assembled, b.ID)
	b.setWorkspace(workspace)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		o.finishFailed(b, fmt.Errorf("orchestrator: creating workspace for %s: %w", b.ID, err))
		return
	}

	o.publishProgress(b, "file-gen")
	gen := &installer.Generator{FragmentRoot: o.Assembler.InstallerRoot, WorkspaceRoot: workspace}
	engine := template.New(assembled.Accumulator.Defs, nil, o.Assembler.DNS)
	if err := gen.Generate(assembled.Accumulator, engine); err != nil {
		o.finishFailed(b, err)
		return
	}

	jsonPath, docDigest, err := writeDocument(workspace, nameFor(assembled, b.ID), assembled.Document)
	if err != nil {
		o.finishFailed(b, err)
		return
	}
	b.setDocumentDigest(docDigest.String())

	if b.cancelled() {
		o.advance(b, StateCancelled)
		return
	}

	o.advance(b, StateRunning)
	o.publishProgress(b, "spawn")

	buildCtx, cancel, timedOut := o.buildContext(parent, b)
	defer cancel()

	opts := packer.BuildOptions{
		JSONFile:    jsonPath,
		WorkDir:     o.Assembler.InstallerRoot,
		TimestampUI: b.Request.Timestamp,
		OnError:     b.Request.OnError,
		Force:       b.Request.Force,
		Debug:       b.Request.Debug,
		Env:         o.buildEnv(assembled),
		GracePeriod: o.cancelGrace(),
	}

	exitCode, runErr := o.Supervisor.Run(buildCtx, opts, func(stream, line string) {
		entry := b.logRing.Append(stream, line)
		o.publish(Event{BuildID: b.ID, Seq: b.nextSeq(), Kind: EventLog, Timestamp: entry.Time, Payload: entry})
	})
	b.setResult(exitCode, runErr)

	switch {
	case runErr == nil:
		o.advance(b, StateCompleted)
	case *timedOut:
		b.setResult(exitCode, oerrors.WithKind(oerrors.TimedOut, runErr))
		o.advance(b, StateTimedOut)
	case b.cancelled():
		o.advance(b, StateCancelled)
	default:
		o.finishFailed(b, oerrors.WithKind(oerrors.PackerExitError, runErr))
	}
}

// buildContext derives a context that cancels when either b's own
// cancellation signal fires or, if the request carries a timeout, when
// that timeout elapses first. timedOut reports which of the two it was,
// readable only after the returned cancel func has been called and the
// caller has observed ctx.Done().
func (o *Orchestrator) buildContext(parent context.Context, b *Build) (context.Context, context.CancelFunc, *bool) {
	ctx, cancel := context.WithCancel(parent)
	timedOut := new(bool)
	stop := make(chan struct{})

	go func() {
		select {
		case <-b.cancelCh:
			cancel()
		case <-stop:
		}
	}()

	var timer *time.Timer
	if b.Request.Timeout > 0 {
		timer = time.AfterFunc(b.Request.Timeout, func() {
			*timedOut = true
			b.requestCancel()
		})
	}

	wrapped := func() {
		cancel()
		close(stop)
		if timer != nil {
			timer.Stop()
		}
	}
	return ctx, wrapped, timedOut
}

func (o *Orchestrator) toAssemblyRequest(b *Build) buildassembly.Request {
	req := b.Request
	return buildassembly.Request{
		Target:      req.Target,
		Name:        req.Name,
		IP:          req.IP,
		Defines:     req.Defines,
		Timeout:     int(req.Timeout.Seconds()),
		Debug:       req.Debug,
		Priority:    req.Priority,
		Reprovision: req.Reprovision,
	}
}

// buildEnv merges a build's resolved evars with any remote credential
// connection variables and the orchestrator's own extra environment.
func (o *Orchestrator) buildEnv(assembled *buildassembly.Assembled) map[string]string {
	env := make(map[string]string, len(assembled.Accumulator.Evars)+len(o.ExtraEnv)+2)
	for k, v := range o.ExtraEnv {
		env[k] = v
	}
	for k, v := range assembled.Accumulator.Evars {
		env[k] = fmt.Sprint(v)
	}
	if o.Assembler.CredentialSource == "remote" {
		if remote, ok := o.Assembler.Credentials.(*credentials.RemoteProvider); ok {
			env["VAULT_ADDR"] = remote.Addr
			env["VAULT_TOKEN"] = remote.Token
		}
	}
	return env
}

func workspaceFor(assembled *buildassembly.Assembled, buildID string) string {
	if ws, ok := assembled.Accumulator.Defs["workspace"].(string); ok && ws != "" {
		return ws
	}
	return filepath.Join(os.TempDir(), "osimager", buildID)
}

func nameFor(assembled *buildassembly.Assembled, buildID string) string {
	if name, ok := assembled.Accumulator.Defs["name"].(string); ok && name != "" {
		return name
	}
	return buildID
}

// writeDocument marshals doc to <workspace>/<name>.json for packer build to
// consume, and content-addresses the marshalled bytes so callers can tell
// two builds produced byte-identical Packer input without diffing files.
func writeDocument(workspace, name string, doc buildassembly.Document) (string, digest.Digest, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("orchestrator: marshalling packer document: %w", err)
	}
	path := filepath.Join(workspace, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("orchestrator: writing %s: %w", path, err)
	}
	return path, digest.FromBytes(data), nil
}
