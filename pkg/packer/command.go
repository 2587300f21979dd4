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

// Package packer wraps the Packer CLI: a lightweight auxiliary runner for
// one-shot diagnostic commands, and a Supervisor (runner.go) for the
// long-lived, cancellable `packer build` invocation the Build Orchestrator
// spawns.
package packer

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/l50/goutils/v2/sys"
)

// AuxiliaryRunner runs short-lived, non-cancellable Packer subcommands used
// for diagnostics ahead of a build, not the build itself.
type AuxiliaryRunner struct{}

func (r *AuxiliaryRunner) runCommand(subCmd string, args []string, dir string, outputHandler func(string)) (string, error) {
	var outputBuffer bytes.Buffer
	var mu sync.Mutex

	cmd := sys.Cmd{
		CmdString: "packer",
		Args:      append([]string{subCmd}, args...),
		Dir:       dir,
		OutputHandler: func(s string) {
			outputHandler(s)
			mu.Lock()
			outputBuffer.WriteString(s + "\n")
			mu.Unlock()
		},
	}

	if _, err := cmd.RunCmd(); err != nil {
		return "", fmt.Errorf("running packer %s: %w", subCmd, err)
	}

	return outputBuffer.String(), nil
}

// RunInit runs `packer init` in dir.
func (r *AuxiliaryRunner) RunInit(args []string, dir string) error {
	_, err := r.runCommand("init", args, dir, func(string) {})
	return err
}

// RunValidate runs `packer validate` in dir.
func (r *AuxiliaryRunner) RunValidate(args []string, dir string) error {
	_, err := r.runCommand("validate", args, dir, func(string) {})
	return err
}

// RunVersion returns the installed Packer version string.
func (r *AuxiliaryRunner) RunVersion() (string, error) {
	var out bytes.Buffer
	_, err := r.runCommand("version", nil, "", func(s string) { out.WriteString(s) })
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
