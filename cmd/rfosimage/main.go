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

// Command rfosimage reprovisions an existing host from a
// platform/location/spec target: it runs the same resolution/assembly
// pipeline as mkosimage but forces the null-builder substitution so the
// downstream build tool connects to host instead of provisioning a new one.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sshoecraft/osimager/pkg/appcli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := appcli.NewCommand(appcli.CommandSpec{
		Use:           "rfosimage <platform>/<location>/<spec> <host> [ip]",
		Short:         "Reprovision an existing host from a resolved platform/location/spec target",
		Reprovision:   true,
		SecondArgName: "host",
		SecondArgReq:  true,
	})
	cmd.SetContext(ctx)

	if err := cmd.Execute(); err != nil {
		if exitErr, ok := err.(*appcli.ExitError); ok {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
