/*
Copyright © 2024-present, Jayson Grace <jayson.e.grace@gmail.com>

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

package packer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// BuildOptions configures one `packer build` invocation.
type BuildOptions struct {
	JSONFile    string
	WorkDir     string
	TimestampUI bool
	OnError     string
	Force       bool
	Debug       bool

	// Env is merged into the child's environment, keys here winning over
	// the parent process's own environment.
	Env map[string]string

	// GracePeriod is how long Run waits after SIGTERM before escalating
	// to SIGKILL. Zero means the default of 30s.
	GracePeriod time.Duration
}

// LineHandler receives one line of child output, tagged by which stream
// it came from ("stdout" or "stderr").
type LineHandler func(stream, line string)

// Supervisor spawns and supervises a `packer build` child process. Unlike
// AuxiliaryRunner's sys.Cmd-based commands, Supervisor needs to honor
// context cancellation with a graduated SIGTERM-then-SIGKILL sequence and
// to read stdout/stderr on dedicated readers, so it drives os/exec
// directly rather than through the buffered sys.Cmd wrapper.
type Supervisor struct {
	// Bin overrides the child binary, defaulting to "packer". Tests
	// substitute a stub shell script so Run is exercised without a real
	// Packer install.
	Bin string
}

// Run starts packer build with opts and blocks until the child exits or
// ctx is cancelled. onLine is invoked once per output line, on whichever
// goroutine read it; it must not block.
func (s *Supervisor) Run(ctx context.Context, opts BuildOptions, onLine LineHandler) (int, error) {
	bin := s.Bin
	if bin == "" {
		bin = "packer"
	}
	args := buildArgs(opts)
	cmd := exec.Command(bin, args...)
	cmd.Dir = opts.WorkDir
	cmd.Env = mergeEnv(opts.Env)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("packer: attaching stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("packer: attaching stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("packer: starting build: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, "stdout", onLine)
	go streamLines(&wg, stderr, "stderr", onLine)

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = 30 * time.Second
	}

	select {
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err := <-waitErr:
			wg.Wait()
			return exitCode(err), ctx.Err()
		case <-time.After(grace):
			_ = cmd.Process.Kill()
			<-waitErr
			wg.Wait()
			return -1, ctx.Err()
		}
	case err := <-waitErr:
		wg.Wait()
		return exitCode(err), err
	}
}

func buildArgs(opts BuildOptions) []string {
	args := []string{"build"}
	if opts.TimestampUI {
		args = append(args, "-timestamp-ui")
	}
	if opts.OnError != "" {
		args = append(args, "-on-error="+opts.OnError)
	}
	if opts.Force {
		args = append(args, "-force")
	}
	if opts.Debug {
		args = append(args, "-debug")
	}
	args = append(args, opts.JSONFile)
	return args
}

func mergeEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func streamLines(wg *sync.WaitGroup, r io.Reader, stream string, onLine LineHandler) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(stream, scanner.Text())
	}
}

// exitCode extracts a child's exit code from the error cmd.Wait() returned,
// treating a nil error as a clean 0 exit.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
