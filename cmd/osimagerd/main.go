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

// Command osimagerd runs a long-lived Build Orchestrator and exposes it to
// observers over a streaming newline-delimited JSON protocol. It is the
// daemon counterpart to mkosimage/rfosimage's one-shot invocations: where
// those commands build one Orchestrator per run, osimagerd keeps one
// running and lets many observers watch every build submitted to it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sshoecraft/osimager/pkg/appcli"
	"github.com/sshoecraft/osimager/pkg/controlplane"
	"github.com/sshoecraft/osimager/pkg/globalconfig"
	"github.com/sshoecraft/osimager/pkg/logging"
	"github.com/sshoecraft/osimager/pkg/orchestrator"
	"github.com/sshoecraft/osimager/pkg/packer"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := globalconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "osimagerd: loading settings: %v\n", err)
		return 1
	}

	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format, false, false); err != nil {
		fmt.Fprintf(os.Stderr, "osimagerd: initializing logging: %v\n", err)
		return 1
	}

	assembler, _, _, _ := appcli.NewAssembler(cfg, false)

	orch := orchestrator.New(assembler, &packer.Supervisor{})
	orch.Workers = cfg.Build.Concurrency
	orch.CancelGrace = cfg.Build.CancelGrace
	orch.RetentionWindow = cfg.Build.Retention
	orch.LogRingSize = cfg.Build.LogRingCapacity

	orchErrCh := make(chan error, 1)
	go func() { orchErrCh <- orch.Start(ctx) }()

	mux := http.NewServeMux()
	mux.Handle("/v1/stream", controlplane.NewServer(orch))

	httpSrv := &http.Server{Addr: cfg.ControlPlane.Addr, Handler: mux}

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- httpSrv.ListenAndServe() }()

	logging.Info("osimagerd: listening on %s", cfg.ControlPlane.Addr)

	select {
	case <-ctx.Done():
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	orchShutdownCtx, orchCancel := context.WithTimeout(context.Background(), cfg.Build.CancelGrace+5*time.Second)
	defer orchCancel()
	_ = orch.Shutdown(orchShutdownCtx)

	if err := <-orchErrCh; err != nil {
		logging.Error(err)
		return 1
	}
	return 0
}
