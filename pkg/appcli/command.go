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

package appcli

import (
	"github.com/spf13/cobra"

	"github.com/sshoecraft/osimager/pkg/cli"
)

// ExitError carries a process exit code up through cobra's Execute, for a
// RunE that fails without a message cobra itself should print (Run already
// logged whatever went wrong).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return "" }

// CommandSpec parameterizes the one cobra command mkosimage and rfosimage
// each build around Run.
type CommandSpec struct {
	Use           string
	Short         string
	Reprovision   bool
	SecondArgName string // "name" or "host", shown in usage/help text
	SecondArgReq  bool
}

// NewCommand builds the shared build command for spec.Use, wiring its
// positional args and flags onto an Options value and dispatching to Run.
func NewCommand(spec CommandSpec) *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:           spec.Use,
		Short:         spec.Short,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Target = args[0]
			}
			if spec.SecondArgReq && len(args) < 2 && !(opts.List || opts.ListPlatforms || opts.ListDefs) {
				cmd.PrintErrf("%s: missing required <%s> argument\n", cmd.Root().Name(), spec.SecondArgName)
				return &ExitError{Code: 1}
			}
			if len(args) > 1 {
				opts.Name = args[1]
			}
			if len(args) > 2 {
				opts.IP = args[2]
			}
			opts.Reprovision = spec.Reprovision

			code := Run(cmd.Context(), cmd.Root().Name(), opts)
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	registerBuildFlags(cmd, &opts.BuildCLIOptions)
	return cmd
}

func registerBuildFlags(cmd *cobra.Command, opts *cli.BuildCLIOptions) {
	flags := cmd.Flags()
	flags.StringArrayVar(&opts.Defines, "define", nil, "override a resolved def, key=value (repeatable)")
	flags.StringArrayVar(&opts.Settings, "set", nil, "override an osimager.conf setting for this run, key=value (repeatable)")
	flags.BoolVar(&opts.Keep, "keep", false, "keep the build workspace after completion")
	flags.StringVar(&opts.Temp, "temp", "", "per-build timeout, e.g. 45m")
	flags.BoolVar(&opts.Force, "force", false, "pass -force to the downstream build tool")
	flags.BoolVar(&opts.Debug, "debug", false, "pass -debug to the downstream build tool")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose diagnostic logging")
	flags.BoolVar(&opts.LocalOnly, "local-only", false, "force ISO resolution to the local cache")
	flags.StringVar(&opts.OnError, "on_error", "", "downstream -on-error mode (cleanup, abort, ask, run-cleanup-provisioner)")
	flags.StringVar(&opts.FQDN, "fqdn", "", "fully-qualified domain name override")
	flags.BoolVar(&opts.Timestamp, "timestamp", false, "pass -timestamp-ui to the downstream build tool")
	flags.BoolVar(&opts.Dry, "dry", false, "resolve and print the intended invocation without running it")
	flags.BoolVar(&opts.DumpDefs, "dump-defs", false, "print the resolved defs for the target and exit")
	flags.BoolVar(&opts.DumpConfig, "dump-config", false, "print the assembled document for the target and exit")
	flags.BoolVar(&opts.List, "list", false, "list every spec the index provides and exit")
	flags.BoolVar(&opts.List, "avail", false, "alias of --list")
	flags.BoolVar(&opts.ListPlatforms, "list-platforms", false, "list known platform names and exit")
	flags.BoolVar(&opts.ListDefs, "list-defs", false, "print each platform's raw defs and exit")
}
